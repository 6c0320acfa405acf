package document

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.yaml.in/yaml/v3"
)

const (
	balanceSuffix    = "-balance"
	keyJob           = "job"
	keyNotifications = "jobnotifications"
	keyStats         = "jobstats"
	keyLevel         = "level"
	keyExp           = "exp"
)

// record is the typed view of one account subtree. Nil pointers and missing
// map entries mean the field is absent.
type record struct {
	Balances      map[string]decimal.Decimal
	Job           *string
	Notifications *bool
	Stats         map[string]*jobStats
	Options       map[string]string
}

type jobStats struct {
	Level *int
	Exp   *int
}

func newRecord() *record {
	return &record{
		Balances: make(map[string]decimal.Decimal),
		Stats:    make(map[string]*jobStats),
		Options:  make(map[string]string),
	}
}

func (r *record) stats(job string) *jobStats {
	s, ok := r.Stats[job]
	if !ok {
		s = &jobStats{}
		r.Stats[job] = s
	}
	return s
}

// MarshalYAML lays the record out as
//
//	<currency>-balance: "12.50"
//	job: miner
//	jobnotifications: true
//	jobstats: {miner: {level: 2, exp: 40}}
//	<option>: "0" | "1"
func (r *record) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	add := func(k string, v *yaml.Node) {
		n.Content = append(n.Content, scalar(k, "!!str"), v)
	}

	for _, cur := range sortedKeys(r.Balances) {
		add(cur+balanceSuffix, scalar(r.Balances[cur].StringFixed(2), "!!str"))
	}
	if r.Job != nil {
		add(keyJob, scalar(*r.Job, "!!str"))
	}
	if r.Notifications != nil {
		add(keyNotifications, scalar(strconv.FormatBool(*r.Notifications), "!!bool"))
	}
	if len(r.Stats) > 0 {
		stats := &yaml.Node{Kind: yaml.MappingNode}
		for _, job := range sortedKeys(r.Stats) {
			s := r.Stats[job]
			entry := &yaml.Node{Kind: yaml.MappingNode}
			if s.Level != nil {
				entry.Content = append(entry.Content, scalar(keyLevel, "!!str"), scalar(strconv.Itoa(*s.Level), "!!int"))
			}
			if s.Exp != nil {
				entry.Content = append(entry.Content, scalar(keyExp, "!!str"), scalar(strconv.Itoa(*s.Exp), "!!int"))
			}
			stats.Content = append(stats.Content, scalar(job, "!!str"), entry)
		}
		add(keyStats, stats)
	}
	for _, opt := range sortedKeys(r.Options) {
		add(opt, scalar(r.Options[opt], "!!str"))
	}
	return n, nil
}

// UnmarshalYAML accepts the layout written by MarshalYAML. Hand-edited files
// may carry numbers instead of strings; both are accepted.
func (r *record) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("account entry is not a mapping (line %d)", value.Line)
	}
	*r = *newRecord()
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i].Value, value.Content[i+1]
		switch {
		case strings.HasSuffix(k, balanceSuffix):
			d, err := decimal.NewFromString(v.Value)
			if err != nil {
				return fmt.Errorf("balance %q: %w", k, err)
			}
			r.Balances[strings.TrimSuffix(k, balanceSuffix)] = d
		case k == keyJob:
			job := v.Value
			r.Job = &job
		case k == keyNotifications:
			var on bool
			if err := v.Decode(&on); err != nil {
				return fmt.Errorf("%s: %w", keyNotifications, err)
			}
			r.Notifications = &on
		case k == keyStats:
			if err := r.decodeStats(v); err != nil {
				return err
			}
		default:
			r.Options[k] = v.Value
		}
	}
	return nil
}

func (r *record) decodeStats(n *yaml.Node) error {
	var raw map[string]map[string]int
	if err := n.Decode(&raw); err != nil {
		return fmt.Errorf("%s: %w", keyStats, err)
	}
	for job, fields := range raw {
		s := r.stats(job)
		if lvl, ok := fields[keyLevel]; ok {
			s.Level = &lvl
		}
		if exp, ok := fields[keyExp]; ok {
			s.Exp = &exp
		}
	}
	return nil
}

func scalar(v, tag string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodeTree parses a whole document. Entries that fail to decode are
// returned in bad so the caller can report them; good entries still load.
func decodeTree(data []byte) (map[string]*record, map[string]error, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	out := make(map[string]*record, len(raw))
	bad := make(map[string]error)
	for key, node := range raw {
		rec := newRecord()
		if err := node.Decode(rec); err != nil {
			bad[key] = err
			continue
		}
		out[key] = rec
	}
	return out, bad, nil
}
