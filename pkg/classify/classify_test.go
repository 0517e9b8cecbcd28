package classify

import (
	"testing"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"

	"github.com/nicktill/tenantobs/pkg/sensor"
)

func TestClassify_Precedence(t *testing.T) {
	tests := []struct {
		name string
		rec  sensor.Record
		want sensor.Category
	}{
		{
			name: "state wins over everything",
			rec: sensor.Record{
				State:       null.StringFrom("online"),
				WindSpeed:   null.FloatFrom(3),
				Temperature: null.FloatFrom(20),
				Contact:     null.BoolFrom(true),
			},
			want: sensor.CategorySystem,
		},
		{
			name: "windspeed beats indoor temperature",
			rec: sensor.Record{
				WindSpeed:   null.FloatFrom(3),
				Temperature: null.FloatFrom(12),
			},
			want: sensor.CategoryMeteo,
		},
		{
			name: "temperature without description",
			rec:  sensor.Record{Temperature: null.FloatFrom(21), Humidity: null.FloatFrom(40)},
			want: sensor.CategoryVarious,
		},
		{
			name: "temperature with description and no windspeed",
			rec: sensor.Record{
				Temperature: null.FloatFrom(12),
				Description: null.StringFrom("light rain"),
			},
			want: sensor.CategoryOther,
		},
		{
			name: "temperature with description falls through to door",
			rec: sensor.Record{
				Temperature: null.FloatFrom(12),
				Description: null.StringFrom("clear"),
				Contact:     null.BoolFrom(false),
			},
			want: sensor.CategoryDoor,
		},
		{
			name: "contact beats illuminance",
			rec:  sensor.Record{Contact: null.BoolFrom(true), Illuminance: null.FloatFrom(5)},
			want: sensor.CategoryDoor,
		},
		{
			name: "illuminance",
			rec:  sensor.Record{Illuminance: null.FloatFrom(5), Occupancy: null.BoolFrom(true)},
			want: sensor.CategoryMovement,
		},
		{
			name: "feedback",
			rec:  sensor.Record{Feedback: null.StringFrom("ok")},
			want: sensor.CategoryFeedback,
		},
		{
			name: "occupancy alone is not movement",
			rec:  sensor.Record{Occupancy: null.BoolFrom(true)},
			want: sensor.CategoryOther,
		},
		{
			name: "empty",
			rec:  sensor.Record{},
			want: sensor.CategoryOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(&tt.rec))
		})
	}
}

func TestClassify_ThreeTenantScenario(t *testing.T) {
	tenantA := []sensor.Record{
		{Tenant: "A", State: null.StringFrom("on")},
		{Tenant: "A", State: null.StringFrom("off"), Temperature: null.FloatFrom(20)},
	}
	tenantB := []sensor.Record{
		{Tenant: "B", Temperature: null.FloatFrom(19)},
		{Tenant: "B", Temperature: null.FloatFrom(22)},
	}
	tenantC := []sensor.Record{
		{Tenant: "C", Temperature: null.FloatFrom(8), Description: null.StringFrom("fog"), WindSpeed: null.FloatFrom(2)},
		{Tenant: "C", Temperature: null.FloatFrom(9), Description: null.StringFrom("fog")},
	}

	for i := range tenantA {
		assert.Equal(t, sensor.CategorySystem, Classify(&tenantA[i]))
	}
	for i := range tenantB {
		assert.Equal(t, sensor.CategoryVarious, Classify(&tenantB[i]))
	}
	assert.Equal(t, sensor.CategoryMeteo, Classify(&tenantC[0]))
	assert.Equal(t, sensor.CategoryOther, Classify(&tenantC[1]))
}

func TestClassify_Deterministic(t *testing.T) {
	rec := sensor.Record{Temperature: null.FloatFrom(20), Illuminance: null.FloatFrom(3)}
	first := Classify(&rec)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(&rec))
	}
}

func TestRules_CoverEveryCategoryButOther(t *testing.T) {
	seen := make(map[sensor.Category]bool)
	for _, r := range Rules {
		assert.False(t, seen[r.Category], "category %s assigned by two rules", r.Category)
		seen[r.Category] = true
	}
	for _, c := range sensor.Categories {
		if c == sensor.CategoryOther {
			assert.False(t, seen[c])
			continue
		}
		assert.True(t, seen[c], "no rule assigns %s", c)
	}
}
