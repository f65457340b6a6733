package app

import (
	"fmt"
	"strings"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"
	"github.com/tidwall/match"
	"github.com/tidwall/redcon"
)

// engineInfo describes the engine a connection draws from.
type engineInfo struct {
	Mode          string
	Seed          uint32
	Cursor        int
	Draws         uint64
	Regenerations uint64
	Fresh         bool
	AppliedIndex  uint64
	Codec         string
}

// MarshalEasyJSON implements easyjson.Marshaler.
func (v *engineInfo) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"mode":`)
	w.String(v.Mode)
	w.RawString(`,"seed":`)
	w.Uint32(v.Seed)
	w.RawString(`,"cursor":`)
	w.Int(v.Cursor)
	w.RawString(`,"draws":`)
	w.Uint64(v.Draws)
	w.RawString(`,"regenerations":`)
	w.Uint64(v.Regenerations)
	w.RawString(`,"fresh":`)
	w.Bool(v.Fresh)
	w.RawString(`,"applied_index":`)
	w.Uint64(v.AppliedIndex)
	w.RawString(`,"codec":`)
	w.String(v.Codec)
	w.RawByte('}')
}

func (v *engineInfo) fields() map[string]string {
	return map[string]string{
		"mode":          v.Mode,
		"seed":          fmt.Sprintf("0x%08X", v.Seed),
		"cursor":        fmt.Sprint(v.Cursor),
		"draws":         fmt.Sprint(v.Draws),
		"regenerations": fmt.Sprint(v.Regenerations),
		"fresh":         fmt.Sprint(v.Fresh),
		"applied_index": fmt.Sprint(v.AppliedIndex),
		"codec":         v.Codec,
	}
}

func readEngineInfo(um Machine) (*engineInfo, error) {
	m := getBaseMachine(um)
	e := um.Engine()
	if m == nil || e == nil {
		return nil, ErrInvalid
	}
	info := &engineInfo{
		Mode:          Shared.String(),
		Seed:          e.SeedValue(),
		Cursor:        e.Cursor(),
		Draws:         e.Draws(),
		Regenerations: e.Regenerations(),
		Fresh:         e.Fresh(),
		AppliedIndex:  m.appliedIndex,
		Codec:         m.codec.String(),
	}
	if _, ok := um.(sessionMachine); ok {
		info.Mode = Private.String()
	}
	return info, nil
}

// ENGINE subcommand args...
// help: inspects the engine the connection draws from.
func cmdENGINE(um Machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, errWrongNumArgsEngine
	}
	switch strings.ToLower(args[1]) {
	case "help":
		if len(args) != 2 {
			return nil, errWrongNumArgsEngine
		}
		return []redcon.SimpleString{
			"ENGINE INFO [pattern]",
			"ENGINE JSON",
		}, nil
	case "info":
		return cmdENGINEINFO(um, ra, args)
	case "json":
		return cmdENGINEJSON(um, ra, args)
	}
	return nil, fmt.Errorf("unknown engine command '%s', try ENGINE HELP",
		args[1])
}

// ENGINE INFO [pattern]
// help: returns engine fields matching pattern; map[string]string
func cmdENGINEINFO(um Machine, ra *raftWrap, args []string,
) (interface{}, error) {
	pattern := "*"
	switch len(args) {
	case 2:
	case 3:
		pattern = args[2]
	default:
		return nil, errWrongNumArgsEngine
	}
	info, err := readEngineInfo(um)
	if err != nil {
		return nil, err
	}
	final := make(map[string]string)
	for key, value := range info.fields() {
		if match.Match(key, pattern) {
			final[key] = value
		}
	}
	return final, nil
}

// ENGINE JSON
// help: returns engine fields as a json object; string
func cmdENGINEJSON(um Machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongNumArgsEngine
	}
	info, err := readEngineInfo(um)
	if err != nil {
		return nil, err
	}
	return easyjson.Marshal(info)
}

