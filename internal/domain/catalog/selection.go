package catalog

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

var (
	ErrSelectionBlank     = errors.New("catalog: selection name and value must be non-empty")
	ErrSelectionDuplicate = errors.New("catalog: selection names must be unique")
)

// SelectedOption is one (variant name, option value) pair of a selection.
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Selection is the variant choice attached to a cart line or order line:
// either no variants at all, or one option per variant. It is validated at
// construction so downstream code never re-interprets raw name/value pairs.
type Selection struct {
	opts []SelectedOption
}

// NoSelection is the selection for products without variants.
func NoSelection() Selection { return Selection{} }

// NewSelection validates and canonicalises the given pairs.
func NewSelection(opts ...SelectedOption) (Selection, error) {
	if len(opts) == 0 {
		return Selection{}, nil
	}
	seen := make(map[string]struct{}, len(opts))
	canonical := make([]SelectedOption, len(opts))
	for i, o := range opts {
		if o.Name == "" || o.Value == "" {
			return Selection{}, ErrSelectionBlank
		}
		if _, dup := seen[o.Name]; dup {
			return Selection{}, ErrSelectionDuplicate
		}
		seen[o.Name] = struct{}{}
		canonical[i] = o
	}
	sort.Slice(canonical, func(i, j int) bool { return canonical[i].Name < canonical[j].Name })
	return Selection{opts: canonical}, nil
}

func (s Selection) IsZero() bool { return len(s.opts) == 0 }

// Options returns the selected pairs in canonical (name-sorted) order.
func (s Selection) Options() []SelectedOption {
	return append([]SelectedOption(nil), s.opts...)
}

// Key is a stable identity string ("color=red|size=xl") used to match cart
// lines and to address stock cells in keyed storage.
func (s Selection) Key() string {
	if s.IsZero() {
		return ""
	}
	parts := make([]string, len(s.opts))
	for i, o := range s.opts {
		parts[i] = o.Name + "=" + o.Value
	}
	return strings.Join(parts, "|")
}

func (s Selection) Equal(other Selection) bool { return s.Key() == other.Key() }

// MarshalJSON serialises the selection as a plain array of pairs.
func (s Selection) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return []byte("[]"), nil
	}
	return json.Marshal(s.opts)
}

func (s *Selection) UnmarshalJSON(data []byte) error {
	var opts []SelectedOption
	if err := json.Unmarshal(data, &opts); err != nil {
		return err
	}
	sel, err := NewSelection(opts...)
	if err != nil {
		return err
	}
	*s = sel
	return nil
}
