package decimal

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimal_JSONIsANumber(t *testing.T) {
	type mark struct {
		Mark  *Decimal `json:"m"`
		Empty *Decimal `json:"e"`
	}

	data, err := json.Marshal(mark{Mark: Ptr(MustParse("7.5"))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"m":7.5,"e":null}`, string(data))

	var decoded mark
	require.NoError(t, json.Unmarshal([]byte(`{"m":8,"e":null}`), &decoded))
	require.NotNil(t, decoded.Mark)
	assert.True(t, decoded.Mark.Equal(FromInt(8)))
	assert.Nil(t, decoded.Empty)

	require.NoError(t, json.Unmarshal([]byte(`{"m":"6.5"}`), &decoded))
	assert.Equal(t, "6.5", decoded.Mark.String())
}

func TestDecimal_Arithmetic(t *testing.T) {
	a, b := MustParse("8.5"), MustParse("1.5")

	assert.Equal(t, "10.0", a.Add(b).String())
	assert.Equal(t, "7.0", a.Sub(b).String())
	assert.Equal(t, "12.75", a.Mul(b).String())

	q, err := MustParse("75").Quo(FromInt(10))
	require.NoError(t, err)
	assert.Equal(t, "7.5", q.String())

	_, err = a.Quo(Zero)
	assert.ErrorIs(t, err, ErrDivisionByZero)

	r, err := MustParse("7.3").Rem(MustParse("0.5"))
	require.NoError(t, err)
	assert.Equal(t, "0.3", r.String())
}

func TestDecimal_Round(t *testing.T) {
	v := MustParse("7.25")
	assert.Equal(t, "7.3", v.Round(1, apd.RoundCeiling).String())
	assert.Equal(t, "7.2", v.Round(1, apd.RoundFloor).String())
	assert.Equal(t, "-7.2", MustParse("-7.25").Round(1, apd.RoundCeiling).String())
}

func TestParse_RejectsNonFinite(t *testing.T) {
	_, err := Parse("NaN")
	assert.Error(t, err)
	_, err = Parse("Infinity")
	assert.Error(t, err)
	_, err = Parse("1.2.3")
	assert.Error(t, err)
}
