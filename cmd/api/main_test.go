package main

import "testing"

func TestMetricsPathBoundsCardinality(t *testing.T) {
	cases := map[string]string{
		"/notification":               "/notification",
		"/v1/admin/cache":             "/v1/admin/cache",
		"/v1/admin/cache/YM-1":        "/v1/admin/cache/{externalNumber}",
		"/v1/admin/cache/YM-99887766": "/v1/admin/cache/{externalNumber}",
		"/v1/admin/journal":           "/v1/admin/journal",
	}
	for in, want := range cases {
		if got := metricsPath(in); got != want {
			t.Fatalf("%s: got %q want %q", in, got, want)
		}
	}
}
