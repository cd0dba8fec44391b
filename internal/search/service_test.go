package search

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeFallback struct {
	results []Result
	err     error
	gotQ    Query
}

func (f *fakeFallback) SearchFallback(_ context.Context, q Query) ([]Result, error) {
	f.gotQ = q
	return f.results, f.err
}

func TestSearchUsesFallbackWithoutMeili(t *testing.T) {
	fallback := &fakeFallback{results: []Result{
		{Type: ResultProject, ID: "p1", Title: "Brand refresh", ProjectID: "p1"},
	}}
	svc := NewService(nil, fallback, zap.NewNop())

	resp := svc.Search(context.Background(), Query{Text: "brand", CompanyID: "co-1"})
	if len(resp.Results) != 1 || resp.Results[0].ID != "p1" {
		t.Fatalf("results = %v", resp.Results)
	}
	if resp.Total != 1 || resp.Query != "brand" {
		t.Fatalf("response = %+v", resp)
	}
	if fallback.gotQ.CompanyID != "co-1" {
		t.Fatalf("company scope not forwarded: %+v", fallback.gotQ)
	}
}

func TestSearchNeverFails(t *testing.T) {
	fallback := &fakeFallback{err: errors.New("data layer down")}
	svc := NewService(nil, fallback, zap.NewNop())

	resp := svc.Search(context.Background(), Query{Text: "brand"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("errors must collapse to an empty result set, got %v", resp.Results)
	}
}

func TestSearchWithoutAnyBackend(t *testing.T) {
	svc := NewService(nil, nil, zap.NewNop())

	resp := svc.Search(context.Background(), Query{Text: "brand"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty results, got %v", resp.Results)
	}
}
