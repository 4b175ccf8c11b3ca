package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/ondemand/oracle/types"
)

type ChainTestSuite struct {
	suite.Suite
	client *MemoryClient
}

func (suite *ChainTestSuite) SetupTest() {
	suite.client = NewMemoryClient()
}

func history(slots ...uint64) SlotHashes {
	out := make(SlotHashes, len(slots))
	for i, s := range slots {
		out[i] = SlotHash{Slot: s, Hash: solana.Hash{byte(s)}}
	}
	return out
}

func (suite *ChainTestSuite) TestParseSlotHashes() {
	entries := history(100, 99, 98)

	got, err := ParseSlotHashes(EncodeSlotHashes(entries))
	suite.Require().NoError(err)
	suite.Equal(entries, got)

	latest, ok := got.Latest()
	suite.True(ok)
	suite.Equal(uint64(100), latest.Slot)
}

func (suite *ChainTestSuite) TestParseSlotHashesRejectsTruncated() {
	data := EncodeSlotHashes(history(5, 4))

	_, err := ParseSlotHashes(data[:len(data)-1])
	suite.True(errors.Is(err, types.ErrDeserialize))

	_, err = ParseSlotHashes([]byte{1, 2})
	suite.True(errors.Is(err, types.ErrDeserialize))
}

func (suite *ChainTestSuite) TestPosition() {
	h := history(100, 99, 98, 90, 10)

	for slot, want := range map[uint64]int{100: 0, 99: 1, 98: 2, 90: 3, 10: 4} {
		p, ok := h.Position(slot)
		suite.True(ok, slot)
		suite.Equal(want, p, slot)
	}

	for _, slot := range []uint64{101, 95, 9, 0} {
		_, ok := h.Position(slot)
		suite.False(ok, slot)
	}

	_, ok := SlotHashes(nil).Position(1)
	suite.False(ok)
}

func (suite *ChainTestSuite) TestLatestSlotHash() {
	_, err := LatestSlotHash(context.Background(), suite.client)
	suite.True(errors.Is(err, types.ErrNotFound))

	suite.client.SetSlotHashes(SlotHashes{})
	_, err = LatestSlotHash(context.Background(), suite.client)
	suite.True(errors.Is(err, types.ErrDeserialize))

	suite.client.SetSlotHashes(history(42, 41))
	latest, err := LatestSlotHash(context.Background(), suite.client)
	suite.Require().NoError(err)
	suite.Equal(uint64(42), latest.Slot)
	suite.Equal(solana.Hash{42}, latest.Hash)
}

func (suite *ChainTestSuite) TestMemoryClient() {
	key := solana.NewWallet().PublicKey()
	missing := solana.NewWallet().PublicKey()
	suite.client.SetAccount(key, []byte{1})

	data, err := suite.client.GetAccount(context.Background(), key)
	suite.Require().NoError(err)
	suite.Equal([]byte{1}, data)

	_, err = suite.client.GetAccount(context.Background(), missing)
	suite.True(errors.Is(err, types.ErrNotFound))

	all, err := suite.client.GetAccounts(context.Background(), []solana.PublicKey{missing, key})
	suite.Require().NoError(err)
	suite.Nil(all[0])
	suite.Equal([]byte{1}, all[1])

	suite.client.FailWith(types.ErrTransport)
	_, err = suite.client.GetAccounts(context.Background(), []solana.PublicKey{key})
	suite.ErrorIs(err, types.ErrTransport)

	suite.Equal(int64(2), suite.client.SingleCalls())
	suite.Equal(int64(2), suite.client.BatchCalls())
}

func TestChainTestSuite(t *testing.T) {
	suite.Run(t, new(ChainTestSuite))
}
