package instruction

import (
	"crypto/sha256"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/types"
)

type SubmitTestSuite struct {
	suite.Suite
	program accounts.Program
	feed    solana.PublicKey
	queue   solana.PublicKey
	payer   solana.PublicKey
}

func (suite *SubmitTestSuite) SetupTest() {
	suite.program = accounts.NewProgram(accounts.DevnetProgramID)
	suite.feed = solana.NewWallet().PublicKey()
	suite.queue = solana.NewWallet().PublicKey()
	suite.payer = solana.NewWallet().PublicKey()
}

func quote(value int64, seed byte, signed bool) types.OracleQuote {
	q := types.OracleQuote{
		Oracle:     solana.NewWallet().PublicKey(),
		Value:      sdkmath.NewInt(value),
		Signed:     signed,
		RecoveryID: seed % 2,
	}
	for i := range q.Signature {
		q.Signature[i] = seed
	}
	return q
}

func readValue(suite *SubmitTestSuite, dec *bin.Decoder) sdkmath.Int {
	b, err := dec.ReadNBytes(16)
	suite.Require().NoError(err)
	v, err := types.Int128FromLE(b)
	suite.Require().NoError(err)
	return v
}

func (suite *SubmitTestSuite) TestDiscriminators() {
	sum := sha256.Sum256([]byte("global:pull_feed_submit_response"))
	suite.Equal(sum[:8], SubmitDiscriminator[:])
	suite.NotEqual(SubmitDiscriminator, SubmitManyDiscriminator)
}

func (suite *SubmitTestSuite) TestBuildSingle() {
	absent := quote(0, 3, true)
	absent.Value = sdkmath.Int{}
	quotes := []types.OracleQuote{
		quote(100, 1, true),
		quote(-5, 2, true),
		quote(7, 4, false),
		absent,
	}

	ix, err := BuildSingle(suite.program, suite.feed, suite.queue, suite.payer, 42, quotes)
	suite.Require().NoError(err)
	suite.Equal(suite.program.ID, ix.ProgramID())

	data, err := ix.Data()
	suite.Require().NoError(err)
	suite.Len(data, 8+8+4+3*(16+64+1+1))

	dec := bin.NewBinDecoder(data)
	disc, _ := dec.ReadNBytes(8)
	suite.Equal(SubmitDiscriminator[:], disc)
	slot, _ := dec.ReadUint64(bin.LE)
	suite.Equal(uint64(42), slot)
	n, _ := dec.ReadUint32(bin.LE)
	suite.Equal(uint32(3), n)

	want := []struct {
		value sdkmath.Int
		seed  byte
	}{
		{sdkmath.NewInt(100), 1},
		{sdkmath.NewInt(-5), 2},
		{types.MaxInt128(), 3},
	}
	for _, w := range want {
		suite.True(w.value.Equal(readValue(suite, dec)))
		sig, _ := dec.ReadNBytes(64)
		suite.Equal(w.seed, sig[0])
		suite.Equal(w.seed, sig[63])
		rid, _ := dec.ReadUint8()
		suite.Equal(w.seed%2, rid)
		offset, _ := dec.ReadUint8()
		suite.Equal(uint8(0), offset)
	}
	suite.Equal(0, dec.Remaining())
}

func (suite *SubmitTestSuite) TestBuildSingleAccounts() {
	quotes := []types.OracleQuote{quote(1, 1, true), quote(2, 2, false), quote(3, 3, true)}

	ix, err := BuildSingle(suite.program, suite.feed, suite.queue, suite.payer, 1, quotes)
	suite.Require().NoError(err)

	state, err := suite.program.StateKey()
	suite.Require().NoError(err)
	vault, err := accounts.RewardVault(suite.queue)
	suite.Require().NoError(err)
	stats0, err := suite.program.StatsKey(quotes[0].Oracle)
	suite.Require().NoError(err)
	stats2, err := suite.program.StatsKey(quotes[2].Oracle)
	suite.Require().NoError(err)

	want := []struct {
		key      solana.PublicKey
		writable bool
		signer   bool
	}{
		{suite.feed, true, false},
		{suite.queue, false, false},
		{state, false, false},
		{accounts.SlotHashesSysvarID, false, false},
		{suite.payer, true, true},
		{accounts.SystemProgramID, false, false},
		{vault, true, false},
		{accounts.TokenProgramID, false, false},
		{accounts.NativeMint, false, false},
		{quotes[0].Oracle, false, false},
		{quotes[2].Oracle, false, false},
		{stats0, true, false},
		{stats2, true, false},
	}

	metas := ix.Accounts()
	suite.Require().Len(metas, len(want))
	for i, w := range want {
		suite.Equal(w.key, metas[i].PublicKey, "account %d", i)
		suite.Equal(w.writable, metas[i].IsWritable, "account %d writable", i)
		suite.Equal(w.signer, metas[i].IsSigner, "account %d signer", i)
	}
}

func (suite *SubmitTestSuite) TestBuildSingleRejectsUnsigned() {
	_, err := BuildSingle(suite.program, suite.feed, suite.queue, suite.payer, 1, []types.OracleQuote{quote(1, 1, false)})
	suite.True(errors.Is(err, types.ErrInvalidRequest))

	_, err = BuildSingle(suite.program, suite.feed, suite.queue, suite.payer, 1, nil)
	suite.True(errors.Is(err, types.ErrInvalidRequest))
}

func row(seed byte, signed bool, values ...sdkmath.Int) types.MultiQuote {
	r := types.MultiQuote{
		Oracle:     solana.NewWallet().PublicKey(),
		Values:     values,
		Signed:     signed,
		RecoveryID: 1,
	}
	for i := range r.Signature {
		r.Signature[i] = seed
	}
	return r
}

func (suite *SubmitTestSuite) TestBuildMany() {
	feeds := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}
	rows := []types.MultiQuote{
		row(1, true, sdkmath.NewInt(10), sdkmath.Int{}),
		row(2, false, sdkmath.NewInt(11), sdkmath.NewInt(21)),
		row(3, true, sdkmath.NewInt(12), sdkmath.NewInt(22)),
	}

	ix, err := BuildMany(suite.program, feeds, suite.queue, suite.payer, 9, rows)
	suite.Require().NoError(err)

	data, err := ix.Data()
	suite.Require().NoError(err)
	dec := bin.NewBinDecoder(data)
	disc, _ := dec.ReadNBytes(8)
	suite.Equal(SubmitManyDiscriminator[:], disc)
	slot, _ := dec.ReadUint64(bin.LE)
	suite.Equal(uint64(9), slot)
	n, _ := dec.ReadUint32(bin.LE)
	suite.Equal(uint32(2), n)

	for _, want := range [][]sdkmath.Int{
		{sdkmath.NewInt(10), types.MaxInt128()},
		{sdkmath.NewInt(12), sdkmath.NewInt(22)},
	} {
		count, _ := dec.ReadUint32(bin.LE)
		suite.Equal(uint32(2), count)
		for _, v := range want {
			suite.True(v.Equal(readValue(suite, dec)))
		}
		_, err := dec.ReadNBytes(64)
		suite.Require().NoError(err)
		rid, _ := dec.ReadUint8()
		suite.Equal(uint8(1), rid)
	}
	suite.Equal(0, dec.Remaining())

	metas := ix.Accounts()
	suite.Require().Len(metas, 8+2+2*2)
	suite.Equal(suite.queue, metas[0].PublicKey)
	suite.True(metas[3].IsSigner)
	suite.Equal(feeds[0], metas[8].PublicKey)
	suite.True(metas[8].IsWritable)
	suite.Equal(feeds[1], metas[9].PublicKey)

	stats, err := suite.program.StatsKey(rows[2].Oracle)
	suite.Require().NoError(err)
	suite.Equal(rows[0].Oracle, metas[10].PublicKey)
	suite.False(metas[10].IsWritable)
	suite.Equal(rows[2].Oracle, metas[12].PublicKey)
	suite.Equal(stats, metas[13].PublicKey)
	suite.True(metas[13].IsWritable)
}

func (suite *SubmitTestSuite) TestBuildManyRejectsBadRows() {
	feeds := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}

	_, err := BuildMany(suite.program, feeds, suite.queue, suite.payer, 1, []types.MultiQuote{row(1, true, sdkmath.NewInt(1))})
	suite.True(errors.Is(err, types.ErrInvalidRequest))

	_, err = BuildMany(suite.program, feeds, suite.queue, suite.payer, 1, []types.MultiQuote{row(1, false, sdkmath.NewInt(1), sdkmath.NewInt(2))})
	suite.True(errors.Is(err, types.ErrInvalidRequest))

	_, err = BuildMany(suite.program, nil, suite.queue, suite.payer, 1, nil)
	suite.True(errors.Is(err, types.ErrInvalidRequest))
}

func TestSubmitTestSuite(t *testing.T) {
	suite.Run(t, new(SubmitTestSuite))
}
