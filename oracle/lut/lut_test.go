package lut

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/ondemand/oracle/accounts"
	"github.com/GPTx-global/ondemand/oracle/chain"
	"github.com/GPTx-global/ondemand/oracle/types"
)

const n = chain.MaxSlotHashEntries

type LutTestSuite struct {
	suite.Suite
	client   *chain.MemoryClient
	program  accounts.Program
	resolver *Resolver
}

func (suite *LutTestSuite) SetupTest() {
	suite.client = chain.NewMemoryClient()
	suite.program = accounts.NewProgram(accounts.DevnetProgramID)
	suite.resolver = NewResolver(suite.client, suite.program)
}

func history(slots ...uint64) chain.SlotHashes {
	out := make(chain.SlotHashes, len(slots))
	for i, s := range slots {
		out[i] = chain.SlotHash{Slot: s}
	}
	return out
}

func keys(count int) []solana.PublicKey {
	out := make([]solana.PublicKey, count)
	for i := range out {
		out[i] = solana.NewWallet().PublicKey()
	}
	return out
}

func (suite *LutTestSuite) TestStatus() {
	h := history(100, 99, 98)

	testCases := []struct {
		name         string
		deactivation uint64
		current      uint64
		want         Status
	}{
		{"never deactivated", math.MaxUint64, 100, Status{Kind: Activated}},
		{"deactivated this slot", 100, 100, Status{Kind: Deactivating, Remaining: n + 1}},
		{"most recent entry", 100, 101, Status{Kind: Deactivating, Remaining: n}},
		{"second entry", 99, 100, Status{Kind: Deactivating, Remaining: n - 1}},
		{"third entry", 98, 100, Status{Kind: Deactivating, Remaining: n - 2}},
		{"out of history", 50, 100, Status{Kind: Deactivated}},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			meta := Meta{DeactivationSlot: tc.deactivation}
			suite.Equal(tc.want, meta.Status(tc.current, h))
			suite.Equal(tc.want.Kind != Deactivated, meta.IsActive(tc.current, h))
		})
	}
}

func (suite *LutTestSuite) TestStatusRemainingSaturates() {
	slots := make([]uint64, n+2)
	for i := range slots {
		slots[i] = uint64(10_000 - i)
	}
	h := history(slots...)

	st := Meta{DeactivationSlot: slots[n+1]}.Status(20_000, h)
	suite.Equal(Status{Kind: Deactivating, Remaining: 0}, st)
}

func (suite *LutTestSuite) TestSameSlotExtensionVisibility() {
	addrs := keys(5)
	table := &Table{
		Exists:    true,
		Meta:      Meta{DeactivationSlot: math.MaxUint64, LastExtendedSlot: 200, LastExtendedSlotStartIndex: 3},
		Addresses: addrs,
	}

	got, err := table.ActiveAddressesLen(200, nil)
	suite.Require().NoError(err)
	suite.Equal(3, got)

	got, err = table.ActiveAddressesLen(201, nil)
	suite.Require().NoError(err)
	suite.Equal(5, got)
}

func (suite *LutTestSuite) TestLookup() {
	addrs := keys(4)
	table := &Table{
		Exists:    true,
		Meta:      Meta{DeactivationSlot: math.MaxUint64, LastExtendedSlot: 10, LastExtendedSlotStartIndex: 2},
		Addresses: addrs,
	}

	got, err := table.Lookup(11, []uint8{3, 0}, nil)
	suite.Require().NoError(err)
	suite.Equal([]solana.PublicKey{addrs[3], addrs[0]}, got)

	_, err = table.Lookup(10, []uint8{1, 2}, nil)
	suite.True(errors.Is(err, types.ErrInvalidIndex))

	_, err = table.Lookup(11, []uint8{4}, nil)
	suite.True(errors.Is(err, types.ErrInvalidIndex))

	table.Meta.DeactivationSlot = 5
	_, err = table.Lookup(11, []uint8{0}, history(11, 10))
	suite.True(errors.Is(err, types.ErrInactiveTable))
}

func (suite *LutTestSuite) TestDecode() {
	authority := solana.NewWallet().PublicKey()
	addrs := keys(3)
	meta := Meta{DeactivationSlot: 77, LastExtendedSlot: 66, LastExtendedSlotStartIndex: 1, Authority: &authority}

	data := Encode(meta, addrs)
	suite.Len(data, MetaSize+3*32)

	gotMeta, gotAddrs, err := Decode(data)
	suite.Require().NoError(err)
	suite.Equal(meta, gotMeta)
	suite.Equal(solana.PublicKeySlice(addrs), gotAddrs)

	gotMeta, gotAddrs, err = Decode(Encode(DefaultMeta(), nil))
	suite.Require().NoError(err)
	suite.Nil(gotMeta.Authority)
	suite.Empty(gotAddrs)
}

func (suite *LutTestSuite) TestDecodeMalformed() {
	_, _, err := Decode(make([]byte, 10))
	suite.True(errors.Is(err, types.ErrDeserialize))

	_, _, err = Decode(make([]byte, MetaSize))
	suite.True(errors.Is(err, types.ErrDeserialize), "uninitialized")

	data := Encode(DefaultMeta(), keys(1))
	_, _, err = Decode(data[:len(data)-1])
	suite.True(errors.Is(err, types.ErrDeserialize))

	data[0] = 9
	_, _, err = Decode(data)
	suite.True(errors.Is(err, types.ErrDeserialize))
}

// seedOracle stores an oracle account and, when withTable is set, its table.
func (suite *LutTestSuite) seedOracle(owner solana.PublicKey, lutSlot uint64, withTable bool) (solana.PublicKey, []solana.PublicKey) {
	suite.client.SetAccount(owner, accounts.EncodeOracle(&accounts.Oracle{LutSlotVal: lutSlot}))
	key, err := DeriveAddress(suite.program, owner, lutSlot)
	suite.Require().NoError(err)
	addrs := keys(2)
	if withTable {
		suite.client.SetAccount(key, Encode(DefaultMeta(), addrs))
	}
	return key, addrs
}

func (suite *LutTestSuite) TestResolveCachesByOwner() {
	owners := keys(2)
	k0, a0 := suite.seedOracle(owners[0], 5, true)
	k1, _ := suite.seedOracle(owners[1], 6, false)

	tables, err := suite.resolver.Resolve(context.Background(), accounts.OracleOwner, owners)
	suite.Require().NoError(err)
	suite.Require().Len(tables, 2)

	suite.Equal(owners[0], tables[0].Owner)
	suite.Equal(k0, tables[0].Key)
	suite.True(tables[0].Exists)
	suite.Equal(solana.PublicKeySlice(a0), tables[0].Addresses)

	suite.Equal(k1, tables[1].Key)
	suite.False(tables[1].Exists)
	suite.Empty(tables[1].Addresses)
	suite.Equal(Activated, tables[1].Meta.Status(1, nil).Kind)

	// one round trip for owners, one for tables
	suite.Equal(int64(2), suite.client.BatchCalls())

	again, err := suite.resolver.Resolve(context.Background(), accounts.OracleOwner, []solana.PublicKey{owners[1], owners[0]})
	suite.Require().NoError(err)
	suite.Same(tables[1], again[0])
	suite.Same(tables[0], again[1])
	suite.Equal(int64(2), suite.client.BatchCalls())
	suite.True(suite.resolver.Cached(owners[0]))

	mapped := AddressTables(tables)
	suite.Len(mapped, 1)
	suite.Equal(solana.PublicKeySlice(a0), mapped[k0])
}

func (suite *LutTestSuite) TestResolveMissingOwnerIsNotCached() {
	owner := solana.NewWallet().PublicKey()

	_, err := suite.resolver.Resolve(context.Background(), accounts.OracleOwner, []solana.PublicKey{owner})
	suite.True(errors.Is(err, types.ErrNotFound))
	suite.False(suite.resolver.Cached(owner))

	suite.seedOracle(owner, 1, true)
	tables, err := suite.resolver.Resolve(context.Background(), accounts.OracleOwner, []solana.PublicKey{owner})
	suite.Require().NoError(err)
	suite.True(tables[0].Exists)
}

func (suite *LutTestSuite) TestResolveRejectsWrongSchema() {
	owner := solana.NewWallet().PublicKey()
	suite.client.SetAccount(owner, accounts.EncodeOracle(&accounts.Oracle{}))

	_, err := suite.resolver.Resolve(context.Background(), accounts.QueueOwner, []solana.PublicKey{owner})
	suite.True(errors.Is(err, types.ErrDeserialize))
}

func (suite *LutTestSuite) TestConcurrentResolvesShareFetches() {
	owners := keys(3)
	for i, o := range owners {
		suite.seedOracle(o, uint64(i+1), true)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tables, err := suite.resolver.Resolve(context.Background(), accounts.OracleOwner, owners)
			suite.NoError(err)
			suite.Len(tables, 3)
		}()
	}
	wg.Wait()

	suite.LessOrEqual(suite.client.BatchCalls(), int64(6))
	for _, o := range owners {
		suite.True(suite.resolver.Cached(o))
	}
}

func (suite *LutTestSuite) TestResolveEmpty() {
	tables, err := suite.resolver.Resolve(context.Background(), accounts.OracleOwner, nil)
	suite.NoError(err)
	suite.Empty(tables)
	suite.Equal(int64(0), suite.client.BatchCalls())
}

func TestLutTestSuite(t *testing.T) {
	suite.Run(t, new(LutTestSuite))
}
