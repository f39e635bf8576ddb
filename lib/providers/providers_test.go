package providers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	require.Equal(t, StatusOngoing, ParseStatus("Releasing"))
	require.Equal(t, StatusOngoing, ParseStatus("Currently Airing"))
	require.Equal(t, StatusCompleted, ParseStatus("Finished Airing"))
	require.Equal(t, StatusCompleted, ParseStatus("COMPLETED"))
	require.Equal(t, StatusUnknown, ParseStatus(""))
	require.Equal(t, StatusUnknown, ParseStatus("Hiatus"))
}

func TestDedupeChildren(t *testing.T) {
	items := []ChildItem{
		{ID: "12", ParentID: "solo-leveling", Ordinal: 1},
		{ID: "13", ParentID: "solo-leveling", Ordinal: 2},
		// repeated scrape of the same page yields the same pair with a
		// different ordinal, the first one sticks
		{ID: "12", ParentID: "solo-leveling", Ordinal: 99},
		// same chapter id under a different parent is a distinct item
		{ID: "12", ParentID: "other-series", Ordinal: 3},
	}

	out := DedupeChildren(items)
	require.Len(t, out, 3)
	require.Equal(t, float64(1), out[0].Ordinal)
	require.Equal(t, "other-series", out[2].ParentID)
}

func TestSortChildrenByID(t *testing.T) {
	items := []ChildItem{
		{ID: "1"},
		{ID: "10.5"},
		{ID: "2"},
		{ID: "extra-side-story"},
		{ID: "10"},
	}

	out := SortChildrenByID(items)
	// non-numeric ids preserve document order after the numeric ones
	expected := []ChildItem{
		{ID: "10.5"},
		{ID: "10"},
		{ID: "2"},
		{ID: "1"},
		{ID: "extra-side-story"},
	}
	if diff := cmp.Diff(expected, out); diff != "" {
		t.Fatal(diff)
	}
}

func TestSortChildrenByIDAllNonNumeric(t *testing.T) {
	items := []ChildItem{{ID: "b"}, {ID: "a"}, {ID: "c"}}
	out := SortChildrenByID(items)
	require.Equal(t, items, out)
}
