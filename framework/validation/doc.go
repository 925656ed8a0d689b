// Package validation checks flat option maps against pipe-separated rule
// strings. Service providers use it to reject bad configuration before
// Configure runs.
//
//	err := validation.Validate(map[string]string{"db": "x"}, validation.Rules{
//	    "addr": "required",
//	    "db":   "integer|min:0|max:15",
//	})
//	// err.Error() == "The addr option is required. The db option must be an integer."
//
// # Rules
//
//	required      value present and not blank
//	nullable      stop checking when the value is empty
//	integer       strconv.Atoi succeeds
//	numeric       strconv.ParseFloat succeeds
//	boolean       true/false/1/0/yes/no/on/off
//	duration      time.ParseDuration succeeds
//	url           absolute URL with a scheme
//	min:n max:n   length, or value when integer/numeric is also given
//	gt gte lt lte numeric comparison
//	in:a,b        one of the listed values
//	not_in:a,b    none of the listed values
//	alpha_dash    letters, digits, "-", "_" and "."
//	regex:expr    matches expr
//
// Options missing from the map are skipped unless they are required.
// Checking a key stops at its first failing rule.
package validation
