package bootinfo

// CmdLineVisitor is invoked by VisitCmdLine once per key=value pair on the
// boot command line. Flags without a value are reported with value equal to
// the key. The visitor must return true to continue the scan.
type CmdLineVisitor func(key, value []byte) bool

// VisitCmdLine scans the NUL-terminated boot command line, splitting it on
// spaces into key=value pairs. The scan performs no allocations so it can be
// used before the memory managers are initialized.
func (info *Info) VisitCmdLine(visitor CmdLineVisitor) {
	line := info.CmdLine[:]
	for end := range line {
		if line[end] == 0 {
			line = line[:end]
			break
		}
	}

	for start := 0; start < len(line); {
		if line[start] == ' ' {
			start++
			continue
		}

		end := start
		for end < len(line) && line[end] != ' ' {
			end++
		}

		field := line[start:end]
		start = end

		sep := -1
		for i := range field {
			if field[i] == '=' {
				sep = i
				break
			}
		}

		var cont bool
		switch {
		case sep == -1:
			cont = visitor(field, field)
		default:
			cont = visitor(field[:sep], field[sep+1:])
		}

		if !cont {
			return
		}
	}
}

// CmdLineUint returns the value of a numeric command line option or defValue
// if the option is absent or not a base-10 number.
func (info *Info) CmdLineUint(key string, defValue uint64) uint64 {
	value := defValue

	info.VisitCmdLine(func(k, v []byte) bool {
		if !bytesEqualString(k, key) {
			return true
		}

		parsed, ok := parseUint(v)
		if ok {
			value = parsed
		}
		return false
	})

	return value
}

func bytesEqualString(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}

	for i := 0; i < len(b); i++ {
		if b[i] != s[i] {
			return false
		}
	}

	return true
}

func parseUint(v []byte) (uint64, bool) {
	if len(v) == 0 {
		return 0, false
	}

	var parsed uint64
	for _, ch := range v {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		parsed = parsed*10 + uint64(ch-'0')
	}

	return parsed, true
}
