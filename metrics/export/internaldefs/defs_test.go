package internaldefs

import (
	"testing"

	phoneverify "github.com/MrEthical07/phoneverify"
)

func TestEveryMetricIsExported(t *testing.T) {
	seen := make(map[phoneverify.MetricID]bool, phoneverify.MetricCount)
	for _, fam := range CounterFamilies {
		if fam.Label == "" && len(fam.Series) != 1 {
			t.Fatalf("%s: unlabeled family must have one series", fam.Name)
		}
		for _, s := range fam.Series {
			if seen[s.ID] {
				t.Fatalf("metric %d exported twice", s.ID)
			}
			seen[s.ID] = true
		}
	}
	for _, def := range HistogramDefs {
		seen[def.ID] = true
	}
	if len(seen) != phoneverify.MetricCount {
		t.Fatalf("expected %d exported metrics, got %d", phoneverify.MetricCount, len(seen))
	}
}

func TestCumulative(t *testing.T) {
	got := Cumulative([]uint64{1, 2, 3})
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if Cumulative(nil) != ([8]uint64{}) {
		t.Fatal("expected zeros for a missing histogram")
	}
}
