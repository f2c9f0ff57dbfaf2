// Package court maps an incident city and state to the federal district court
// where a Section 1983 complaint would be filed.
package court

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed districts.yaml
var districtsYAML []byte

type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Method records which rule produced a Result.
type Method string

const (
	MethodExact          Method = "exact"
	MethodSingleDistrict Method = "single_district"
	MethodKeyword        Method = "keyword"
	MethodDefault        Method = "default"
	MethodUnsupported    Method = "unsupported"
	MethodUnknownState   Method = "unknown_state"
)

type Result struct {
	District   string     `json:"district"`
	CourtName  string     `json:"court_name"`
	State      string     `json:"state"`
	City       string     `json:"city"`
	Confidence Confidence `json:"confidence"`
	Method     Method     `json:"method"`
	Note       string     `json:"note,omitempty"`
}

// District is one entry of a state's table, in file order.
type District struct {
	Name     string   `yaml:"name" json:"name"`
	Cities   []string `yaml:"cities" json:"cities"`
	Keywords []string `yaml:"keywords" json:"keywords,omitempty"`
}

type stateDoc struct {
	Name      string     `yaml:"name"`
	Default   string     `yaml:"default"`
	Districts []District `yaml:"districts"`
}

type state struct {
	code      string
	name      string
	def       string
	districts []District
	cities    map[string]string // city -> first district listing it
}

// Table is immutable after Parse and safe for concurrent use.
type Table struct {
	states map[string]*state
}

// Parse builds a Table from the YAML layout used by districts.yaml.
func Parse(data []byte) (*Table, error) {
	var doc struct {
		States map[string]stateDoc `yaml:"states"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse district table: %w", err)
	}
	t := &Table{states: make(map[string]*state, len(doc.States))}
	for code, sd := range doc.States {
		code = strings.ToUpper(strings.TrimSpace(code))
		if len(sd.Districts) == 0 {
			return nil, fmt.Errorf("state %s has no districts", code)
		}
		st := &state{code: code, name: sd.Name, def: sd.Default, districts: sd.Districts, cities: map[string]string{}}
		found := sd.Default == ""
		for _, d := range sd.Districts {
			if d.Name == sd.Default {
				found = true
			}
			for _, c := range d.Cities {
				c = normalizeCity(c)
				if _, dup := st.cities[c]; !dup {
					st.cities[c] = d.Name
				}
			}
		}
		if !found {
			return nil, fmt.Errorf("state %s default %q is not one of its districts", code, sd.Default)
		}
		t.states[code] = st
	}
	return t, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded table, parsed once.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(districtsYAML)
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}

// Lookup resolves against the embedded table.
func Lookup(city, stateCode string) Result {
	return Default().Lookup(city, stateCode)
}

// CourtName formats the full court name for a district.
func CourtName(district string) string {
	if district == "" {
		return ""
	}
	return "United States District Court for the " + district
}

func normalizeCity(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Lookup applies, in order: exact city match, single-district default, keyword
// substring, state default, unsupported placeholder.
func (t *Table) Lookup(city, stateCode string) Result {
	c := normalizeCity(city)
	code := strings.ToUpper(strings.TrimSpace(stateCode))
	res := Result{State: code, City: c}

	st, ok := t.states[code]
	if !ok {
		res.District = fmt.Sprintf("Unknown state (%s)", code)
		res.Confidence = Low
		res.Method = MethodUnknownState
		res.Note = fmt.Sprintf("State code %q is not recognized; verify the court manually.", code)
		return res
	}

	if d, ok := st.cities[c]; ok && c != "" {
		return st.result(res, d, High, MethodExact, "")
	}
	if len(st.districts) == 1 {
		only := st.districts[0].Name
		return st.result(res, only, Low, MethodSingleDistrict,
			fmt.Sprintf("City not in table; defaulted to the %s, the only district in %s. Verify before filing.", only, st.name))
	}
	if c != "" {
		for _, d := range st.districts {
			for _, kw := range d.Keywords {
				if kw != "" && strings.Contains(c, normalizeCity(kw)) {
					return st.result(res, d.Name, Medium, MethodKeyword,
						fmt.Sprintf("Matched %q by keyword; confirm the district.", kw))
				}
			}
		}
	}
	if st.def != "" {
		return st.result(res, st.def, Low, MethodDefault,
			fmt.Sprintf("City not found; defaulted to the %s for %s. Verify before filing.", st.def, st.name))
	}

	res.District = fmt.Sprintf("%s (district to be determined)", st.name)
	res.Confidence = Low
	res.Method = MethodUnsupported
	res.Note = fmt.Sprintf("City %q is unsupported for %s, which has %d districts; verify the correct district.", city, st.name, len(st.districts))
	return res
}

func (st *state) result(res Result, district string, conf Confidence, m Method, note string) Result {
	res.District = district
	res.CourtName = CourtName(district)
	res.Confidence = conf
	res.Method = m
	res.Note = note
	return res
}

// StateInfo is the public summary of one state's districts.
type StateInfo struct {
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	Default   string     `json:"default,omitempty"`
	Districts []District `json:"districts"`
}

// States lists every state sorted by code.
func (t *Table) States() []StateInfo {
	out := make([]StateInfo, 0, len(t.states))
	for _, st := range t.states {
		out = append(out, StateInfo{Code: st.code, Name: st.name, Default: st.def, Districts: st.districts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// State returns the summary for one code.
func (t *Table) State(code string) (StateInfo, bool) {
	st, ok := t.states[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return StateInfo{}, false
	}
	return StateInfo{Code: st.code, Name: st.name, Default: st.def, Districts: st.districts}, true
}
