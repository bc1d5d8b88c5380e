package engine

import (
	"context"
	"fmt"

	"metamirror/pkg/meta"
	"metamirror/pkg/storage"
)

// Payload is the caller-supplied, kind-specific payload. Shapes are only
// checked as far as required fields and format constraints; the remote
// platform stays authoritative for deeper semantics.
type Payload map[string]interface{}

// descriptor parameterizes the one generic mutation protocol over an entity
// kind: where creates go, what the default status is, which payload fields
// are required, and how the remote create body is assembled. The three
// kinds differ only here.
type descriptor struct {
	kind          storage.Kind
	collection    string
	parentKind    storage.Kind
	parentField   string
	defaultStatus storage.Status
	validate      func(p Payload, partial bool) error
	applyDefaults func(p Payload)
	createBody    func(ctx context.Context, remote Remote, p Payload) (interface{}, error)
}

var campaignObjectives = map[string]bool{
	"OUTCOME_AWARENESS":     true,
	"OUTCOME_TRAFFIC":       true,
	"OUTCOME_ENGAGEMENT":    true,
	"OUTCOME_LEADS":         true,
	"OUTCOME_SALES":         true,
	"OUTCOME_APP_PROMOTION": true,
}

var optimizationGoals = map[string]bool{
	"REACH":       true,
	"LINK_CLICKS": true,
	"CONVERSIONS": true,
	"ENGAGEMENT":  true,
}

var bidStrategies = map[string]bool{
	"LOWEST_COST_WITHOUT_CAP": true,
	"LOWEST_COST_WITH_BID_CAP": true,
	"COST_CAP":                 true,
}

var statuses = map[storage.Status]bool{
	storage.StatusActive:  true,
	storage.StatusPaused:  true,
	storage.StatusDeleted: true,
	storage.StatusDraft:   true,
	storage.StatusPending: true,
}

var descriptors = map[storage.Kind]descriptor{
	storage.KindCampaign: {
		kind:          storage.KindCampaign,
		collection:    "campaigns",
		defaultStatus: storage.StatusDraft,
		validate:      validateCampaign,
		applyDefaults: func(p Payload) {
			if budget, ok := p["budget"].(map[string]interface{}); ok {
				if _, ok := budget["currency"]; !ok {
					budget["currency"] = "TRY"
				}
				if _, ok := budget["type"]; !ok {
					budget["type"] = "DAILY"
				}
			}
		},
		createBody: func(ctx context.Context, remote Remote, p Payload) (interface{}, error) {
			body := map[string]interface{}{
				"name":         p["name"],
				"objective":    p["objective"],
				"daily_budget": budgetAmount(p["budget"]),
				"status":       string(storage.StatusPaused),
			}
			if start, ok := p["startDate"]; ok {
				body["start_time"] = start
			}
			if end, ok := p["endDate"]; ok {
				body["stop_time"] = end
			}
			return body, nil
		},
	},
	storage.KindAdSet: {
		kind:          storage.KindAdSet,
		collection:    "adsets",
		parentKind:    storage.KindCampaign,
		parentField:   "campaignId",
		defaultStatus: storage.StatusDraft,
		validate:      validateAdSet,
		applyDefaults: func(p Payload) {
			if _, ok := p["bidStrategy"]; !ok {
				p["bidStrategy"] = "LOWEST_COST_WITHOUT_CAP"
			}
			if _, ok := p["targeting"]; !ok {
				p["targeting"] = map[string]interface{}{
					"age_min":       18,
					"age_max":       65,
					"genders":       []int{1, 2},
					"geo_locations": map[string]interface{}{"countries": []string{"TR"}},
				}
			}
		},
		createBody: func(ctx context.Context, remote Remote, p Payload) (interface{}, error) {
			body := map[string]interface{}{
				"name":         p["name"],
				"campaign_id":  p["campaignId"],
				"daily_budget": budgetAmount(p["budget"]),
				"status":       string(storage.StatusPaused),
			}
			if goal, ok := p["optimizationGoal"]; ok {
				body["optimization_goal"] = goal
			}
			if strategy, ok := p["bidStrategy"]; ok {
				body["bid_strategy"] = strategy
			}
			if targeting, ok := p["targeting"]; ok {
				body["targeting"] = targeting
			}
			return body, nil
		},
	},
	storage.KindAd: {
		kind:          storage.KindAd,
		collection:    "ads",
		parentKind:    storage.KindAdSet,
		parentField:   "adSetId",
		defaultStatus: storage.StatusPaused,
		validate:      validateAd,
		createBody: func(ctx context.Context, remote Remote, p Payload) (interface{}, error) {
			// Two-step create: the creative must exist before the ad.
			creative, err := remote.CreateCreative(ctx, meta.CreativeSpec{
				Title:    stringField(p, "title"),
				Content:  stringField(p, "content"),
				Link:     stringField(p, "link"),
				MediaURL: stringField(p, "mediaUrl"),
			})
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"name":     p["title"],
				"adset_id": p["adSetId"],
				"creative": map[string]interface{}{"creative_id": creative.ID()},
				"status":   string(storage.StatusPaused),
			}, nil
		},
	},
}

func validateCampaign(p Payload, partial bool) error {
	if err := requireStrings(p, partial, "name", "objective"); err != nil {
		return err
	}
	if err := maxLen(p, "name", 100); err != nil {
		return err
	}
	if obj, ok := p["objective"]; ok {
		s, _ := obj.(string)
		if !campaignObjectives[s] {
			return validationErr("unknown objective %q", s)
		}
	}
	return validateBudget(p, partial)
}

func validateAdSet(p Payload, partial bool) error {
	required := []string{"name"}
	if !partial {
		required = append(required, "campaignId")
	}
	if err := requireStrings(p, partial, required...); err != nil {
		return err
	}
	if err := maxLen(p, "name", 100); err != nil {
		return err
	}
	if goal, ok := p["optimizationGoal"]; ok {
		s, _ := goal.(string)
		if !optimizationGoals[s] {
			return validationErr("unknown optimizationGoal %q", s)
		}
	}
	if strategy, ok := p["bidStrategy"]; ok {
		s, _ := strategy.(string)
		if !bidStrategies[s] {
			return validationErr("unknown bidStrategy %q", s)
		}
	}
	return validateBudget(p, partial)
}

func validateAd(p Payload, partial bool) error {
	required := []string{"title", "content", "link"}
	if !partial {
		required = append(required, "adSetId")
	}
	if err := requireStrings(p, partial, required...); err != nil {
		return err
	}
	if err := maxLen(p, "title", 40); err != nil {
		return err
	}
	return maxLen(p, "content", 125)
}

// requireStrings checks presence (unless partial) and that present values
// are non-empty strings.
func requireStrings(p Payload, partial bool, keys ...string) error {
	var missing []string
	for _, key := range keys {
		v, ok := p[key]
		if !ok {
			if !partial {
				missing = append(missing, key)
			}
			continue
		}
		s, isString := v.(string)
		if !isString || s == "" {
			return validationErr("field %q must be a non-empty string", key)
		}
	}
	if len(missing) > 0 {
		return validationErr("missing required fields: %v", missing)
	}
	return nil
}

func maxLen(p Payload, key string, limit int) error {
	v, ok := p[key]
	if !ok {
		return nil
	}
	if s, isString := v.(string); isString && len(s) > limit {
		return validationErr("field %q exceeds %d characters", key, limit)
	}
	return nil
}

func validateBudget(p Payload, partial bool) error {
	v, ok := p["budget"]
	if !ok {
		if partial {
			return nil
		}
		return validationErr("missing required fields: [budget]")
	}
	if budgetAmount(v) <= 0 {
		return validationErr("budget amount must be positive")
	}
	return nil
}

// budgetAmount accepts either a bare number or a {amount, currency, type}
// object, matching what callers historically sent.
func budgetAmount(v interface{}) float64 {
	switch b := v.(type) {
	case float64:
		return b
	case int:
		return float64(b)
	case map[string]interface{}:
		if amount, ok := b["amount"]; ok {
			return budgetAmount(amount)
		}
	}
	return 0
}

func stringField(p Payload, key string) string {
	s, _ := p[key].(string)
	return s
}

func descriptorFor(kind storage.Kind) (descriptor, error) {
	d, ok := descriptors[kind]
	if !ok {
		return descriptor{}, fmt.Errorf("unknown entity kind %q", kind)
	}
	return d, nil
}
