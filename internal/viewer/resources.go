package viewer

import (
	"fmt"
	"strings"

	"scheditor/internal/model"
)

// Resource is one assignable resource (a room, a person). Keys are
// arbitrary; ResourceFields says which ones carry the id and label.
type Resource map[string]any

// ResourceFields names the keys used to match and label resources. IDField
// is also the event field holding the assigned id(s).
type ResourceFields struct {
	IDField       string `yaml:"id_field" json:"idField"`
	TextField     string `yaml:"text_field" json:"textField"`
	SubtitleField string `yaml:"subtitle_field,omitempty" json:"subtitleField,omitempty"`
	ColorField    string `yaml:"color_field,omitempty" json:"colorField,omitempty"`
}

// MatchResources returns the resources assigned to ev, in resources order.
// The event value may be a single id or a list of ids.
func MatchResources(ev model.EventRecord, resources []Resource, rf ResourceFields) []Resource {
	if rf.IDField == "" {
		return nil
	}
	assigned, ok := ev.Get(rf.IDField)
	if !ok {
		return nil
	}

	ids := map[string]struct{}{}
	switch t := assigned.(type) {
	case []any:
		for _, v := range t {
			ids[key(v)] = struct{}{}
		}
	case []string:
		for _, v := range t {
			ids[v] = struct{}{}
		}
	default:
		ids[key(t)] = struct{}{}
	}

	var out []Resource
	for _, r := range resources {
		if _, hit := ids[key(r[rf.IDField])]; hit {
			out = append(out, r)
		}
	}
	return out
}

// ResourceText joins the labels of the resources assigned to ev.
func ResourceText(ev model.EventRecord, resources []Resource, rf ResourceFields) string {
	matched := MatchResources(ev, resources, rf)
	texts := make([]string, 0, len(matched))
	for _, r := range matched {
		if s := fmt.Sprint(r[rf.TextField]); r[rf.TextField] != nil && s != "" {
			texts = append(texts, s)
		}
	}
	return strings.Join(texts, ", ")
}

// key compares ids by their printed form so 1 (yaml) and 1.0 (json) match.
func key(v any) string {
	if v == nil {
		return "\x00"
	}
	return fmt.Sprint(v)
}
