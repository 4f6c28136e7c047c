package tcp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const EndLine = "\r\n"

// Response like http.Response, but with any proto
type Response struct {
	Status     string
	StatusCode int
	Proto      string
	Header     textproto.MIMEHeader
	Body       []byte
}

// String - CSeq always goes first, other headers sorted by name
func (r Response) String() string {
	s := r.Proto + " " + r.Status + EndLine
	s += HeaderString(r.Header)
	s += EndLine
	if r.Body != nil {
		s += string(r.Body)
	}
	return s
}

func HeaderString(header textproto.MIMEHeader) string {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if isCSeq(keys[i]) != isCSeq(keys[j]) {
			return isCSeq(keys[i])
		}
		return keys[i] < keys[j]
	})

	var s string
	for _, k := range keys {
		if v := header[k]; len(v) > 0 {
			s += k + ": " + v[0] + EndLine
		}
	}
	return s
}

func isCSeq(key string) bool {
	return strings.EqualFold(key, "CSeq")
}

func ReadResponse(r *bufio.Reader) (*Response, error) {
	tp := textproto.NewReader(r)

	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}
	if line == "" {
		return nil, errors.New("empty response")
	}

	ss := strings.SplitN(line, " ", 3)
	if len(ss) != 3 {
		return nil, fmt.Errorf("malformed response: %s", line)
	}

	res := &Response{
		Status: ss[1] + " " + ss[2],
		Proto:  ss[0],
	}

	res.StatusCode, err = strconv.Atoi(ss[1])
	if err != nil {
		return nil, err
	}

	res.Header, err = tp.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return res, nil
}

// Request like http.Request, but with any proto
type Request struct {
	Method string
	URL    *url.URL
	Proto  string
	Header textproto.MIMEHeader
}

func (r *Request) String() string {
	s := r.Method + " " + r.URL.String() + " " + r.Proto + EndLine
	s += HeaderString(r.Header)
	return s + EndLine
}
