// Package classify assigns exactly one sensor category to each record.
//
// Rules are evaluated top to bottom and the first match wins. Several
// rows satisfy more than one rule (an outdoor station reports both
// windspeed and temperature), so the order is part of the contract:
//
//  1. state present                              -> system
//  2. windspeed present                          -> meteo
//  3. temperature present, description absent    -> various
//  4. contact present                            -> door
//  5. illuminance present                        -> movement
//  6. feedback present                           -> feedback
//  7. otherwise                                  -> other
package classify

import "github.com/nicktill/tenantobs/pkg/sensor"

// Rule pairs a predicate with the category it assigns.
type Rule struct {
	Name     string
	Match    func(*sensor.Record) bool
	Category sensor.Category
}

// Rules is the decision list. Do not reorder: meteorological temperature
// readings always carry a description, which is what keeps them out of
// "various".
var Rules = []Rule{
	{Name: "state", Match: IsState, Category: sensor.CategorySystem},
	{Name: "windspeed", Match: IsMeteo, Category: sensor.CategoryMeteo},
	{Name: "indoor-temperature", Match: IsVarious, Category: sensor.CategoryVarious},
	{Name: "contact", Match: IsDoor, Category: sensor.CategoryDoor},
	{Name: "illuminance", Match: IsMovement, Category: sensor.CategoryMovement},
	{Name: "feedback", Match: IsFeedback, Category: sensor.CategoryFeedback},
}

// Classify returns the category of the first matching rule, or other.
func Classify(r *sensor.Record) sensor.Category {
	for _, rule := range Rules {
		if rule.Match(r) {
			return rule.Category
		}
	}
	return sensor.CategoryOther
}

// IsState matches controller status rows.
func IsState(r *sensor.Record) bool { return r.Has(sensor.FieldState) }

// IsMeteo matches weather station rows.
func IsMeteo(r *sensor.Record) bool { return r.Has(sensor.FieldWindSpeed) }

// IsVarious matches indoor temperature rows; meteorological readings
// carry a description and are excluded.
func IsVarious(r *sensor.Record) bool {
	return r.Has(sensor.FieldTemperature) && !r.Has(sensor.FieldDescription)
}

// IsDoor matches contact sensor rows.
func IsDoor(r *sensor.Record) bool { return r.Has(sensor.FieldContact) }

// IsMovement matches motion sensor rows.
func IsMovement(r *sensor.Record) bool { return r.Has(sensor.FieldIlluminance) }

// IsFeedback matches occupant feedback rows.
func IsFeedback(r *sensor.Record) bool { return r.Has(sensor.FieldFeedback) }
