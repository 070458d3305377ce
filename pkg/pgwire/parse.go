package pgwire

import "fmt"

// ParseFrame decodes a split frame into its typed message.
func ParseFrame(f *Frame) (FrontendMessage, error) {
	if f.Startup() {
		return parseStartupCategory(f)
	}

	r := NewReader(f.Payload)
	switch f.Type {
	case MsgQuery:
		sql, err := r.ReadCString()
		if err != nil {
			return nil, err
		}
		return &Query{String: sql}, nil
	case MsgParse:
		return parseParse(r)
	case MsgBind:
		return parseBind(r)
	case MsgExecute:
		portal, err := r.ReadCString()
		if err != nil {
			return nil, err
		}
		maxRows, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		return &Execute{Portal: portal, MaxRows: maxRows}, nil
	case MsgDescribe:
		typ, name, err := parseObjectRef(r)
		if err != nil {
			return nil, err
		}
		return &Describe{ObjectType: typ, Name: name}, nil
	case MsgClose:
		typ, name, err := parseObjectRef(r)
		if err != nil {
			return nil, err
		}
		return &Close{ObjectType: typ, Name: name}, nil
	case MsgSync:
		return &Sync{}, nil
	case MsgTerminate:
		return &Terminate{}, nil
	case MsgPassword:
		pass, err := r.ReadCString()
		if err != nil {
			return nil, err
		}
		return &PasswordMessage{Password: pass}, nil
	}
	return &Unknown{Type: f.Type}, nil
}

func parseStartupCategory(f *Frame) (FrontendMessage, error) {
	r := NewReader(f.Payload)
	code, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	switch {
	case code == SSLRequestCode:
		return &SSLRequest{}, nil
	case code == CancelRequestCode:
		pid, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		key, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		return &CancelRequest{ProcessID: pid, SecretKey: key}, nil
	case code>>16 == ProtocolMajor:
		params := map[string]string{}
		for r.Remaining() > 0 {
			name, err := r.ReadCString()
			if err != nil {
				return nil, err
			}
			if name == "" {
				break
			}
			value, err := r.ReadCString()
			if err != nil {
				return nil, err
			}
			params[name] = value
		}
		return &StartupMessage{ProtocolVersion: code, Parameters: params}, nil
	}
	return nil, fmt.Errorf("unsupported startup code %d", code)
}

func parseParse(r *Reader) (*Parse, error) {
	name, err := r.ReadCString()
	if err != nil {
		return nil, err
	}
	sql, err := r.ReadCString()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	oids := make([]uint32, 0, n)
	for i := 0; i < int(n); i++ {
		oid, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		oids = append(oids, oid)
	}
	return &Parse{Name: name, Query: sql, ParameterOIDs: oids}, nil
}

func parseBind(r *Reader) (*Bind, error) {
	portal, err := r.ReadCString()
	if err != nil {
		return nil, err
	}
	statement, err := r.ReadCString()
	if err != nil {
		return nil, err
	}

	formats, err := parseInt16Vector(r)
	if err != nil {
		return nil, err
	}

	nparams, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	params := make([][]byte, 0, nparams)
	for i := 0; i < int(nparams); i++ {
		length, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		if length < 0 {
			params = append(params, nil)
			continue
		}
		val, err := r.ReadBytes(int(length))
		if err != nil {
			return nil, err
		}
		params = append(params, val)
	}

	resultFormats, err := parseInt16Vector(r)
	if err != nil {
		return nil, err
	}

	return &Bind{
		Portal:               portal,
		Statement:            statement,
		ParameterFormatCodes: formats,
		Parameters:           params,
		ResultFormatCodes:    resultFormats,
	}, nil
}

func parseInt16Vector(r *Reader) ([]int16, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	out := make([]int16, 0, n)
	for i := 0; i < int(n); i++ {
		v, err := r.ReadInt16()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseObjectRef(r *Reader) (byte, string, error) {
	typ, err := r.ReadByte()
	if err != nil {
		return 0, "", err
	}
	if typ != 'S' && typ != 'P' {
		return 0, "", fmt.Errorf("bad object kind %q", typ)
	}
	name, err := r.ReadCString()
	if err != nil {
		return 0, "", err
	}
	return typ, name, nil
}
