package adapter

// dscpValues maps DiffServ code point names to their 6-bit values.
var dscpValues = map[string]int{
	"be":  0,
	"cs0": 0, "cs1": 8, "cs2": 16, "cs3": 24,
	"cs4": 32, "cs5": 40, "cs6": 48, "cs7": 56,
	"af11": 10, "af12": 12, "af13": 14,
	"af21": 18, "af22": 20, "af23": 22,
	"af31": 26, "af32": 28, "af33": 30,
	"af41": 34, "af42": 36, "af43": 38,
	"ef": 46,
}

// DSCPValue resolves a code point name (e.g. "ef", "af41") to its numeric
// value.
func DSCPValue(name string) (int, bool) {
	v, ok := dscpValues[name]
	return v, ok
}
