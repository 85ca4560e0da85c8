package nortek

// Registry maps each of the 21 supported PNORx prefixes to its Layout.
// Classification rejects anything not present here as UNKNOWN_PREFIX
// before it ever reaches Parse.
var Registry = map[string]Layout{
	"PNORI":  {Prefix: "PNORI", Fields: positional("instrument_type", "head_id", "num_beams", "num_cells", "blanking", "cell_size", "coord_system")},
	"PNORI1": {Prefix: "PNORI1", Fields: positional("instrument_type", "head_id", "num_beams", "num_cells", "blanking", "cell_size", "coord_system", "num_cells_ast")},

	// PNORI2 is reported tag=value rather than positionally (spec.md §4.4
	// example 3: "SN=123456,IT=4,NC=30,NB=4,CS=5.00,BD=1.00,CY=BEAM"), so
	// field order in the sentence doesn't matter.
	"PNORI2": {Prefix: "PNORI2", Tagged: true, Fields: []FieldSpec{
		{Name: "head_id", Tag: "SN", Type: TypeString},
		{Name: "instrument_type", Tag: "IT", Type: TypeInt},
		{Name: "num_cells", Tag: "NC", Type: TypeInt},
		{Name: "num_beams", Tag: "NB", Type: TypeInt},
		{Name: "cell_size", Tag: "CS", Type: TypeFloat, Sentinel: true},
		{Name: "blanking", Tag: "BD", Type: TypeFloat, Sentinel: true},
		{Name: "coord_system", Tag: "CY", Type: TypeString},
	}},

	"PNORS":  {Prefix: "PNORS", Fields: positional("date", "time", "error_code", "status_code", "battery_voltage_s", "sound_speed_s", "heading_s", "pitch_s", "roll_s", "pressure_s", "temperature_s")},
	"PNORS1": {Prefix: "PNORS1", Fields: positional("date", "time", "error_code", "status_code", "battery_voltage_s", "sound_speed_s", "heading_s", "pitch_s", "roll_s", "pressure_s", "temperature_s", "analog_input1")},
	"PNORS2": {Prefix: "PNORS2", Fields: positional("date", "time", "error_code", "status_code", "battery_voltage_s", "sound_speed_s", "heading_s", "pitch_s", "roll_s", "pressure_s", "temperature_s", "analog_input1", "analog_input2")},
	"PNORS3": {Prefix: "PNORS3", Fields: positional("date", "time", "error_code", "status_code", "battery_voltage_s", "sound_speed_s", "heading_s", "pitch_s", "roll_s", "pressure_s", "temperature_s", "speed_of_sound_used")},
	"PNORS4": {Prefix: "PNORS4", Fields: positional("date", "time", "error_code", "status_code", "battery_voltage_s", "sound_speed_s", "heading_s", "pitch_s", "roll_s", "pressure_s", "temperature_s", "mag_x", "mag_y", "mag_z")},

	"PNORC":  {Prefix: "PNORC", Fields: positional("date", "time", "cell_number", "velocity_x", "velocity_y", "velocity_z", "speed", "direction", "amp1", "amp2", "amp3")},
	"PNORC1": {Prefix: "PNORC1", Fields: positional("date", "time", "cell_number", "velocity_x", "velocity_y", "velocity_z", "speed", "direction", "amp1", "amp2", "amp3", "corr1")},
	"PNORC2": {Prefix: "PNORC2", Fields: positional("date", "time", "cell_number", "velocity_x", "velocity_y", "velocity_z", "speed", "direction", "amp1", "amp2", "amp3", "corr1", "corr2")},
	"PNORC3": {Prefix: "PNORC3", Fields: positional("date", "time", "cell_number", "velocity_x", "velocity_y", "velocity_z", "speed", "direction", "amp1", "amp2", "amp3", "corr1", "corr2", "corr3")},
	"PNORC4": {Prefix: "PNORC4", Fields: positional("date", "time", "cell_number", "velocity_beam1", "velocity_beam2", "velocity_beam3", "velocity_beam4", "amp1", "amp2", "amp3", "amp4")},

	"PNORH3": {Prefix: "PNORH3", Fields: positional("date", "time", "head_id", "num_beams", "num_cells", "cell_size", "blanking", "coord_system", "pressure_s")},
	"PNORH4": {Prefix: "PNORH4", Fields: positional("date", "time", "head_id", "num_beams", "num_cells", "cell_size", "blanking", "coord_system", "pressure_s", "temperature_s")},

	"PNORA": {Prefix: "PNORA", Fields: positional("date", "time", "error_code", "status_code", "num_beams", "cell_number", "amp1", "amp2", "amp3", "amp4")},

	"PNORW": {Prefix: "PNORW", Fields: positional("date", "time", "spectrum_basis", "proc_method", "num_dirs", "wave_energy", "hm0", "h3", "h10", "hmax", "tm02", "tp", "tz", "dir_tp", "sprtp", "main_direction", "unidirectivity_index")},

	// Burst configuration is reported tag=value rather than positionally, each
	// tag being the field name itself; every listed tag is required, and a
	// missing one is a MISSING_FIELD error.
	"PNORB": {Prefix: "PNORB", Tagged: true, Fields: positional("date", "time", "num_beams", "num_cells", "cell_size", "blanking", "burst_counter", "sample_rate")},

	"PNORE": {Prefix: "PNORE", Fields: positional("date", "time", "error_flags_hex")},

	"PNORF": {Prefix: "PNORF", Compound: true, Fields: append(positional("date", "time", "spectrum_basis", "num_freq", "freq_step", "freq_low"), FieldSpec{Name: "spectrum", Type: TypeFloat, Sentinel: true, Array: true})},

	"PNORWD": {Prefix: "PNORWD", Compound: true, Fields: append(positional("date", "time", "num_dirs", "dir_step"), FieldSpec{Name: "directional_spectrum", Type: TypeFloat, Sentinel: true, Array: true})},
}

// positional builds a FieldSpec slice for a positional layout, applying the
// shared sentinel rule to every field except date, time, error_flags_hex and
// head_id (validated via its own ValidHeadID rule). fieldTypeFor defaults
// fields to TypeFloat — the Nortek field catalogue is overwhelmingly
// floating point — with counts and indices as TypeInt and identifiers,
// dates/times and status/error codes as TypeString.
func positional(names ...string) []FieldSpec {
	specs := make([]FieldSpec, 0, len(names))
	for _, n := range names {
		specs = append(specs, FieldSpec{Name: n, Type: fieldTypeFor(n), Sentinel: n != "date" && n != "time" && n != "head_id" && n != "error_flags_hex"})
	}
	return specs
}

func fieldTypeFor(name string) FieldType {
	switch name {
	case "head_id", "date", "time", "error_flags_hex", "status", "status_code", "error_code", "coord_system", "instrument_type":
		return TypeString
	case "num_beams", "num_cells", "num_cells_ast", "num_cells_hr", "cell_number", "num_dirs", "num_freq", "burst_counter", "spectrum_basis", "proc_method":
		return TypeInt
	default:
		return TypeFloat
	}
}
