package importer

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"ledger/internal/core"
)

// Column names of the Alipay transaction export.
const (
	colTimestamp    = "交易时间"
	colCategory     = "交易分类"
	colCounterparty = "交易对方"
	colDescription  = "商品说明"
	colDirection    = "收/支"
	colAmount       = "金额"
	colMethod       = "收/付款方式"
	colStatus       = "交易状态"
	colOrderNo      = "交易订单号"
	colRemark       = "备注"
)

// succeededStatuses are the export statuses of completed transactions.
var succeededStatuses = map[string]bool{
	"交易成功": true,
	"支付成功": true,
	"还款成功": true,
	"充值成功": true,
	"提现成功": true,
	"已收入":  true,
}

// Encoding returns the decoder for a configured encoding name.
func Encoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gb18030":
		return simplifiedchinese.GB18030, nil
	case "gbk":
		return simplifiedchinese.GBK, nil
	case "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", name)
}

// line is one decoded physical line of the export.
type line struct {
	number int
	text   string
}

// decodeLines splits raw on '\n' and decodes each line. Neither GB18030 nor
// UTF-8 uses 0x0A inside a multi-byte sequence, so splitting first is safe.
// A replacement character after the header means the file is not in the
// expected encoding.
func decodeLines(raw []byte, enc encoding.Encoding) ([]line, error) {
	dec := enc.NewDecoder()
	var (
		lines      []line
		headerSeen bool
	)
	for i, b := range bytes.Split(raw, []byte{'\n'}) {
		b = bytes.TrimSuffix(b, []byte{'\r'})
		text, err := dec.Bytes(b)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", core.ErrEncoding, i+1, err)
		}
		s := string(text)
		if !headerSeen {
			if isHeader(s) {
				headerSeen = true
			}
		} else if strings.ContainsRune(s, utf8.RuneError) {
			return nil, fmt.Errorf("%w: line %d contains undecodable bytes", core.ErrEncoding, i+1)
		}
		lines = append(lines, line{number: i + 1, text: s})
	}
	return lines, nil
}

func trimCell(s string) string {
	return strings.Trim(s, " \t")
}

func isHeader(s string) bool {
	first, _, _ := strings.Cut(s, ",")
	return trimCell(first) == colTimestamp
}

// header maps column names to positions. Trailing empty header cells, which
// the export emits after its last column, are not columns.
type header struct {
	names []string
	index map[string]int
}

func parseHeader(s string) header {
	cells := strings.Split(s, ",")
	for i := range cells {
		cells[i] = trimCell(cells[i])
	}
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	h := header{names: cells, index: make(map[string]int, len(cells))}
	for i, name := range cells {
		if _, dup := h.index[name]; !dup {
			h.index[name] = i
		}
	}
	return h
}

// row is a split data line.
type row struct {
	h     header
	cells []string
}

// splitRow splits a data line into len(h.names) cells: the first N-1 commas
// separate fields and everything after them is the free-text last column.
// It reports false when the line has fewer than N-1 commas.
func (h header) splitRow(s string) (row, bool) {
	n := len(h.names)
	if n == 0 {
		return row{}, false
	}
	cells := strings.SplitN(s, ",", n)
	if len(cells) < n {
		return row{}, false
	}
	for i := 0; i < n-1; i++ {
		cells[i] = trimCell(cells[i])
	}
	last := trimCell(cells[n-1])
	last = strings.TrimSuffix(last, ",")
	cells[n-1] = trimCell(last)
	return row{h: h, cells: cells}, true
}

func (r row) get(name string) string {
	i, ok := r.h.index[name]
	if !ok {
		return ""
	}
	return r.cells[i]
}

// digitsOnly strips everything but ASCII digits; order numbers are exported
// with padding and tab characters.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
