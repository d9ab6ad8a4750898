package agenda

import (
	"fmt"
	"strings"

	"tourcal/internal/model"
)

// Rule maps a set of keywords onto an activity type.
type Rule struct {
	Type     model.ActivityType
	Keywords []string
}

// Classifier assigns activity types by keyword. Rules are checked in order
// and the first rule with a keyword contained in the activity wins.
type Classifier struct {
	rules []Rule
}

// DefaultRules returns the built-in keyword sets in classification order.
func DefaultRules() []Rule {
	return []Rule{
		{Type: model.TypeMeal, Keywords: []string{"breakfast", "lunch", "dinner", "meal", "eat"}},
		{Type: model.TypeAttraction, Keywords: []string{"museum", "gallery", "visit", "tour", "monument", "attraction"}},
		{Type: model.TypeAccommodation, Keywords: []string{"hotel", "check-in", "check-out", "accommodation", "room"}},
		{Type: model.TypeTransportation, Keywords: []string{"transport", "bus", "train", "flight", "drive", "taxi"}},
	}
}

// NewClassifier builds a classifier from rules. Keywords are lower-cased
// and blank keywords dropped.
func NewClassifier(rules []Rule) *Classifier {
	c := &Classifier{rules: make([]Rule, 0, len(rules))}
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		c.rules = append(c.rules, Rule{Type: r.Type, Keywords: kws})
	}
	return c
}

// DefaultClassifier uses DefaultRules.
func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultRules())
}

// ClassifierFromKeywords starts from DefaultRules and replaces the keyword
// list of every type named in overrides. Order stays the default order.
func ClassifierFromKeywords(overrides map[string][]string) (*Classifier, error) {
	rules := DefaultRules()
	for name, kws := range overrides {
		typ, err := model.ParseActivityType(name)
		if err != nil {
			return nil, err
		}
		if typ == model.TypeOther {
			return nil, fmt.Errorf("keywords: %q is the fallback type and takes no keywords", name)
		}
		for i := range rules {
			if rules[i].Type == typ {
				rules[i].Keywords = kws
			}
		}
	}
	return NewClassifier(rules), nil
}

// Classify returns the type for an activity description.
func (c *Classifier) Classify(activity string) model.ActivityType {
	activity = strings.ToLower(activity)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(activity, kw) {
				return r.Type
			}
		}
	}
	return model.TypeOther
}
