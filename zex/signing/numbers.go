package signing

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var bigTen = big.NewInt(10)

// exactDecimal 按 float64 的精确二进制值构造十进制数，分母为 2^k 时 k 位小数即可精确表示
func exactDecimal(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fmt.Errorf("cannot convert %v to decimal", f)
	}
	r := new(big.Rat).SetFloat64(f)
	return decimal.NewFromBigRat(r, int32(r.Denom().BitLen()-1)), nil
}

// ToScientific 将十进制数规范化为（尾数, 以 10 为底的指数）
// 尾数去掉末尾的 0；指数必须落在 int8 范围内，尾数必须能放进 uint64
func ToScientific(d decimal.Decimal) (uint64, int8, error) {
	if d.Sign() < 0 {
		return 0, 0, fmt.Errorf("cannot convert negative value to scientific form: %s", d)
	}
	if d.IsZero() {
		return 0, 0, nil
	}

	mantissa := d.Coefficient()
	exponent := int64(d.Exponent())
	quo, rem := new(big.Int), new(big.Int)
	for {
		quo.QuoRem(mantissa, bigTen, rem)
		if rem.Sign() != 0 {
			break
		}
		mantissa.Set(quo)
		exponent++
	}

	if exponent < -128 || exponent > 127 {
		return 0, 0, fmt.Errorf("cannot convert value to scientific form: %s", d)
	}
	if !mantissa.IsUint64() {
		return 0, 0, fmt.Errorf("mantissa overflows uint64: %s", d)
	}
	return mantissa.Uint64(), int8(exponent), nil
}

// FromScientific 由尾数和指数还原十进制数
func FromScientific(mantissa uint64, exponent int8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(mantissa), int32(exponent))
}

// FormatDecimal 以定点形式输出十进制数（不使用科学计数法），整数补 ".0"
func FormatDecimal(d decimal.Decimal) string {
	return ensureFraction(d.String())
}

// FormatFloat 以最短定点形式输出浮点数，整数补 ".0"
func FormatFloat(f float64) string {
	return ensureFraction(strconv.FormatFloat(f, 'f', -1, 64))
}

func ensureFraction(s string) string {
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
