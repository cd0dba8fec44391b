package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"reviewport/api/internal/gateway"
)

// fakeGateway is an in-memory stand-in for the hosted data layer. Rows are
// stored as JSON maps and filtered by interpreting the gateway query dialect,
// so service code exercises the same query strings production sends.
type fakeGateway struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	calls  []string
	nextID int

	selectErr map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		tables:    map[string][]map[string]any{},
		selectErr: map[string]error{},
	}
}

// seed appends a typed row to a table.
func (f *fakeGateway) seed(resource string, row any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[resource] = append(f.tables[resource], toMap(row))
}

func (f *fakeGateway) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			count++
		}
	}
	return count
}

func (f *fakeGateway) rows(resource string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.tables[resource]...)
}

func (f *fakeGateway) Select(_ context.Context, resource string, q gateway.Query, out any) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "SELECT "+resource)
	err := f.selectErr[resource]
	rows := append([]map[string]any(nil), f.tables[resource]...)
	f.mu.Unlock()
	if err != nil {
		return -1, err
	}

	filters, order, limit, offset := parseFakeQuery(q)
	matched := filterRows(rows, filters)
	sortRows(matched, order)

	total := len(matched)
	if offset > 0 {
		if offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[offset:]
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	if out != nil {
		raw, err := json.Marshal(matched)
		if err != nil {
			return -1, err
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return -1, err
		}
	}
	if q.Count {
		return total, nil
	}
	return -1, nil
}

func (f *fakeGateway) Insert(_ context.Context, resource string, record, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "INSERT "+resource)

	row := toMap(record)
	if v, ok := row["id"]; !ok || v == "" || v == nil {
		f.nextID++
		row["id"] = fmt.Sprintf("%s-%d", resource, f.nextID)
	}
	f.tables[resource] = append(f.tables[resource], row)
	return decodeOut(row, out)
}

func (f *fakeGateway) Upsert(_ context.Context, resource string, record, out any, conflictColumns string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "UPSERT "+resource)

	// Merge against the caller-declared natural key, like the real dialect's
	// on_conflict parameter.
	row := toMap(record)
	keys := []string{"id"}
	if conflictColumns != "" {
		keys = strings.Split(conflictColumns, ",")
	}

	for i, existing := range f.tables[resource] {
		same := true
		for _, k := range keys {
			if fmt.Sprintf("%v", existing[k]) != fmt.Sprintf("%v", row[k]) {
				same = false
				break
			}
		}
		if same {
			row["id"] = existing["id"]
			f.tables[resource][i] = row
			return decodeOut(row, out)
		}
	}

	if v, ok := row["id"]; !ok || v == "" || v == nil {
		f.nextID++
		row["id"] = fmt.Sprintf("%s-%d", resource, f.nextID)
	}
	f.tables[resource] = append(f.tables[resource], row)
	return decodeOut(row, out)
}

func (f *fakeGateway) Update(_ context.Context, resource string, q gateway.Query, patch any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "UPDATE "+resource)

	filters, _, _, _ := parseFakeQuery(q)
	patchMap := toMap(patch)
	for i, row := range f.tables[resource] {
		if rowMatches(row, filters) {
			for k, v := range patchMap {
				row[k] = v
			}
			f.tables[resource][i] = row
		}
	}
	return nil
}

func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}

func decodeOut(row map[string]any, out any) error {
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func parseFakeQuery(q gateway.Query) (filters map[string]string, order string, limit, offset int) {
	filters = map[string]string{}
	values, _ := url.ParseQuery(q.Encode())
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		switch key {
		case "select":
		case "order":
			order = vals[0]
		case "limit":
			fmt.Sscanf(vals[0], "%d", &limit)
		case "offset":
			fmt.Sscanf(vals[0], "%d", &offset)
		default:
			filters[key] = vals[0]
		}
	}
	return filters, order, limit, offset
}

func filterRows(rows []map[string]any, filters map[string]string) []map[string]any {
	var matched []map[string]any
	for _, row := range rows {
		if rowMatches(row, filters) {
			matched = append(matched, row)
		}
	}
	return matched
}

func rowMatches(row map[string]any, filters map[string]string) bool {
	for column, expr := range filters {
		value := row[column]
		switch {
		case strings.HasPrefix(expr, "eq."):
			if fmt.Sprintf("%v", value) != strings.TrimPrefix(expr, "eq.") {
				return false
			}
		case expr == "is.null":
			if value != nil {
				return false
			}
		case expr == "is.true":
			if value != true {
				return false
			}
		case expr == "is.false":
			if value != false && value != nil {
				return false
			}
		case strings.HasPrefix(expr, "in.("):
			list := strings.TrimSuffix(strings.TrimPrefix(expr, "in.("), ")")
			found := false
			if list != "" {
				for _, item := range strings.Split(list, ",") {
					if fmt.Sprintf("%v", value) == strings.Trim(item, `"`) {
						found = true
						break
					}
				}
			}
			if !found {
				return false
			}
		case strings.HasPrefix(expr, "ilike."):
			pattern := strings.Trim(strings.TrimPrefix(expr, "ilike."), "*")
			if !strings.Contains(strings.ToLower(fmt.Sprintf("%v", value)), strings.ToLower(pattern)) {
				return false
			}
		case strings.HasPrefix(expr, "gte."):
			// RFC 3339 timestamps compare correctly as strings.
			if fmt.Sprintf("%v", value) < strings.TrimPrefix(expr, "gte.") {
				return false
			}
		case strings.HasPrefix(expr, "lte."):
			if fmt.Sprintf("%v", value) > strings.TrimPrefix(expr, "lte.") {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func sortRows(rows []map[string]any, order string) {
	if order == "" {
		return
	}
	parts := strings.SplitN(order, ".", 2)
	column := parts[0]
	desc := len(parts) == 2 && parts[1] == "desc"
	sort.SliceStable(rows, func(i, j int) bool {
		a := fmt.Sprintf("%v", rows[i][column])
		b := fmt.Sprintf("%v", rows[j][column])
		if desc {
			return a > b
		}
		return a < b
	})
}
