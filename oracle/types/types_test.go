package types

import (
	"errors"
	"fmt"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/suite"
)

type TypesTestSuite struct {
	suite.Suite
}

func (suite *TypesTestSuite) TestFeedHashHex() {
	var h FeedHash
	h[0], h[31] = 0xab, 0x01

	parsed, err := FeedHashFromHex(h.String())
	suite.Require().NoError(err)
	suite.Equal(h, parsed)

	_, err = FeedHashFromHex("abcd")
	suite.Error(err)
	_, err = FeedHashFromHex("zz")
	suite.Error(err)
}

func (suite *TypesTestSuite) TestParseInt128() {
	testCases := []struct {
		name  string
		input string
		ok    bool
		want  string
	}{
		{"positive", "1000000000000000000", true, "1000000000000000000"},
		{"negative", "-42", true, "-42"},
		{"max", "170141183460469231731687303715884105727", true, "170141183460469231731687303715884105727"},
		{"overflow", "170141183460469231731687303715884105728", false, ""},
		{"underflow", "-170141183460469231731687303715884105729", false, ""},
		{"empty", "", false, ""},
		{"decimal point", "1.5", false, ""},
		{"garbage", "NaN", false, ""},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			v, ok := ParseInt128(tc.input)
			suite.Equal(tc.ok, ok)
			if tc.ok {
				suite.Equal(tc.want, v.String())
			} else {
				suite.True(v.IsNil())
			}
		})
	}
}

func (suite *TypesTestSuite) TestInt128LittleEndian() {
	for _, s := range []string{"0", "1", "-1", "123456789012345678901234567890", "-170141183460469231731687303715884105728"} {
		v, ok := sdkmath.NewIntFromString(s)
		suite.Require().True(ok)

		enc, err := Int128ToLE(v)
		suite.Require().NoError(err)
		dec, err := Int128FromLE(enc[:])
		suite.Require().NoError(err)
		suite.True(v.Equal(dec), s)
	}

	enc, err := Int128ToLE(sdkmath.NewInt(-1))
	suite.Require().NoError(err)
	for _, b := range enc {
		suite.Equal(byte(0xff), b)
	}

	enc, err = Int128ToLE(MaxInt128())
	suite.Require().NoError(err)
	suite.Equal(byte(0x7f), enc[15])
	suite.Equal(byte(0xff), enc[0])

	_, err = Int128ToLE(sdkmath.NewIntFromBigInt(two128))
	suite.Error(err)
	_, err = Int128FromLE([]byte{1, 2})
	suite.Error(err)
}

func (suite *TypesTestSuite) TestFormatDecimal() {
	suite.Equal("1", FormatDecimal(sdkmath.NewInt(1_000_000_000_000_000_000)))
	suite.Equal("0.5", FormatDecimal(sdkmath.NewInt(500_000_000_000_000_000)))
	suite.Equal("-0.000000000000000001", FormatDecimal(sdkmath.NewInt(-1)))
	suite.Equal("0", FormatDecimal(sdkmath.ZeroInt()))
	suite.Equal("<nil>", FormatDecimal(sdkmath.Int{}))
}

func (suite *TypesTestSuite) TestQuoteHasValue() {
	suite.False(OracleQuote{}.HasValue())
	suite.True(OracleQuote{Value: sdkmath.ZeroInt()}.HasValue())
}

func (suite *TypesTestSuite) TestCollectionErrors() {
	r := QuoteCollectionResult{
		Quotes:   []OracleQuote{{Error: "timeout"}, {Value: sdkmath.OneInt()}, {Error: "bad job"}},
		Failures: []string{"oracle offline"},
	}
	suite.Equal([]string{"timeout", "bad job", "oracle offline"}, r.Errors())
}

func (suite *TypesTestSuite) TestNoQuotesError() {
	err := error(&NoQuotesError{Errors: []string{"a", "b"}})
	suite.True(errors.Is(err, ErrNoQuotes))
	suite.Contains(err.Error(), "a; b")

	var nq *NoQuotesError
	wrapped := NewPipelineError(StageCollectQuotes, err)
	suite.True(errors.As(wrapped, &nq))
	suite.Equal([]string{"a", "b"}, nq.Errors)
}

func (suite *TypesTestSuite) TestPipelineError() {
	err := NewPipelineError(StageLoadFeed, fmt.Errorf("feed: %w", ErrNotFound))
	suite.True(errors.Is(err, ErrNotFound))
	suite.Equal(StageLoadFeed, err.Stage)
	suite.Contains(err.Error(), "LoadFeed failed")
	suite.Equal("Stage(42)", Stage(42).String())
}

func TestTypesTestSuite(t *testing.T) {
	suite.Run(t, new(TypesTestSuite))
}
