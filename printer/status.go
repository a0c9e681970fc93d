package printer

import (
	"bytes"
	"strconv"
	"strings"
)

// Framing bytes of the host status response.
const (
	stx = 0x02
	etx = 0x03
)

// Status is a parsed host status response.
//
// Paper and Ribbon are "ok", "out" or "" when the response does not say.
// The flag fields are only filled when the response carries the standard
// three framed status strings.
type Status struct {
	RawResponse string `json:"raw_response"`
	Online      string `json:"online"`
	Paper       string `json:"paper,omitempty"`
	Ribbon      string `json:"ribbon,omitempty"`

	Structured      bool `json:"structured"`
	Paused          bool `json:"paused,omitempty"`
	HeadOpen        bool `json:"head_open,omitempty"`
	BufferFull      bool `json:"buffer_full,omitempty"`
	UnderTemp       bool `json:"under_temperature,omitempty"`
	OverTemp        bool `json:"over_temperature,omitempty"`
	FormatsInBuffer int  `json:"formats_in_buffer,omitempty"`
	LabelsRemaining int  `json:"labels_remaining,omitempty"`
}

// Ready reports whether nothing in the status prevents printing.
func (s *Status) Ready() bool {
	if s == nil {
		return false
	}
	return s.Paper != "out" && s.Ribbon != "out" && !s.Paused && !s.HeadOpen
}

// completeStatus reports whether buf holds the three framed status strings.
func completeStatus(buf []byte) bool {
	return bytes.Count(buf, []byte{etx}) >= 3
}

// ParseStatus interprets a host status response. Responses in the standard
// framed layout are decoded field by field; anything else falls back to
// keyword matching on PAPER and RIBBON.
func ParseStatus(response string) *Status {
	st := &Status{RawResponse: response, Online: "unknown"}
	if response != "" {
		st.Online = "online"
	}

	if parseFramed(st, response) {
		return st
	}

	upper := strings.ToUpper(response)
	switch {
	case strings.Contains(upper, "PAPER OUT"):
		st.Paper = "out"
	case strings.Contains(upper, "PAPER"):
		st.Paper = "ok"
	}
	switch {
	case strings.Contains(upper, "RIBBON OUT"):
		st.Ribbon = "out"
	case strings.Contains(upper, "RIBBON"):
		st.Ribbon = "ok"
	}
	return st
}

// parseFramed decodes
//
//	<STX>aaa,b,c,dddd,eee,f,g,h,iii,j,k,l<ETX>
//	<STX>mmm,n,o,p,q,r,s,t,uuuuuuuu,v,www<ETX>
//	<STX>xxxx,y<ETX>
//
// where b is paper out, c paused, eee formats in buffer, f buffer full,
// k under temperature, l over temperature, o head open, p ribbon out and
// uuuuuuuu labels remaining.
func parseFramed(st *Status, response string) bool {
	var lines [][]string
	rest := response
	for {
		start := strings.IndexByte(rest, stx)
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], etx)
		if end < 0 {
			break
		}
		body := rest[start+1 : start+end]
		lines = append(lines, strings.Split(body, ","))
		rest = rest[start+end+1:]
	}
	if len(lines) < 2 || len(lines[0]) < 12 || len(lines[1]) < 9 {
		return false
	}

	first, second := lines[0], lines[1]
	flag := func(v string) bool { return strings.TrimSpace(v) == "1" }
	num := func(v string) int {
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}

	st.Structured = true
	st.Paper = okOrOut(flag(first[1]))
	st.Paused = flag(first[2])
	st.FormatsInBuffer = num(first[4])
	st.BufferFull = flag(first[5])
	st.UnderTemp = flag(first[10])
	st.OverTemp = flag(first[11])
	st.HeadOpen = flag(second[2])
	st.Ribbon = okOrOut(flag(second[3]))
	st.LabelsRemaining = num(second[8])
	return true
}

func okOrOut(out bool) string {
	if out {
		return "out"
	}
	return "ok"
}
