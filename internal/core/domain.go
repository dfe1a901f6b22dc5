package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = 1
	Expense Kind = 2
)

const (
	MethodCash   int64 = 1
	MethodAlipay int64 = 2
	MethodWeChat int64 = 3
)

// UnknownCategoryName is the catalog entry used when an imported category
// cannot be resolved for the record's kind.
const UnknownCategoryName = "其他"

type (
	// Kind is the direction of a record. The zero value is invalid.
	Kind uint8

	Category struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Kind Kind   `json:"type"`
	}

	Method struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	Comment struct {
		ID         int64  `json:"id"`
		CategoryID int64  `json:"categoryId"`
		Text       string `json:"text"`
	}

	// BillRecord is one stored transaction. The embedded Period is derived
	// from Timestamp and must never be set independently of it.
	BillRecord struct {
		ID int64 `json:"id"`
		Period
		Timestamp    time.Time       `json:"transactionDate"`
		Amount       decimal.Decimal `json:"amount"`
		Kind         Kind            `json:"transactionType"`
		CategoryID   int64           `json:"categoryId,omitempty"`
		Category     string          `json:"category,omitempty"` // filled on reads
		MethodID     int64           `json:"transactionMethodId"`
		Method       string          `json:"transactionMethod,omitempty"` // filled on reads
		Counterparty string          `json:"counterparty"`
		Description  string          `json:"productName"`
		Remark       string          `json:"remark"`
		ExternalID   string          `json:"sourceId,omitempty"`
	}
)

// CategoryNames is the fixed catalog, in seed order. The i-th name is stored
// with id 2i+1 as an expense category and 2i+2 as an income category.
var CategoryNames = []string{
	"餐饮美食", "服饰装扮", "日用百货", "家居家装", "数码电器",
	"运动户外", "美容美发", "母婴亲子", "宠物", "交通出行",
	"爱车养车", "住房物业", "酒店旅游", "文化休闲", "教育培训",
	"医疗健康", "生活服务", "公共服务", "商业服务", "公益捐赠",
	"互助保障", "投资理财", "保险", "信用借还", "充值缴费",
	"收入", "转账红包", "亲友代付", "账户存取", "退款", UnknownCategoryName,
}

var (
	ErrInvalidKind   = errors.New("invalid transaction kind")
	ErrInvalidMethod = errors.New("invalid transaction method")
)

func (k Kind) String() string {
	switch k {
	case Income:
		return "income"
	case Expense:
		return "expense"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// ParseKind accepts the stored names and the labels used by the export.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "收入":
		return Income, nil
	case "expense", "支出":
		return Expense, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, ErrInvalidKind
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// SeedCategoryID returns the pre-assigned id of a catalog category.
func SeedCategoryID(name string, kind Kind) (int64, bool) {
	if !kind.Valid() {
		return 0, false
	}
	for i, n := range CategoryNames {
		if n != name {
			continue
		}
		id := int64(2*i + 1)
		if kind == Income {
			id++
		}
		return id, true
	}
	return 0, false
}

func (r BillRecord) Validate() error {
	if r.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	if r.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if r.MethodID <= 0 {
		return ErrInvalidMethod
	}
	if r.ExternalID != "" && r.MethodID == MethodCash {
		return errors.New("cash records cannot carry an external id")
	}
	return nil
}
