/*
Package sensor defines the record model shared by every tenantobs stage.

A Record is one time-stamped observation from one tenant. Apart from the
timestamp, tenant and device, every field is optional: which subset is
populated tells what kind of sensor produced the row, and that subset is
what the classifier looks at.

	rec := sensor.Record{
	    Timestamp:   time.Date(2019, 5, 1, 10, 0, 0, 0, time.UTC),
	    Tenant:      "0201a8c87da4",
	    Device:      "thermo-1",
	    Temperature: null.FloatFrom(21.5),
	}
	rec.Has(sensor.FieldTemperature) // true
	rec.Has(sensor.FieldHumidity)    // false

Absent is never zero. Numeric helpers return (value, ok) and aggregates
skip values whose ok is false.

# Categories

Category is derived once per record by package classify and stored on
the record by the dataset builder:

	system, meteo, various, door, movement, feedback, other

# Identity

Key hashes (timestamp, tenant, device, raw payload) with xxhash. Two
records with the same key are the same ingestion and a dataset refuses
to hold both.
*/
package sensor
