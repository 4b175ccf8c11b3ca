package accounts

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var (
	MainnetProgramID = solana.MustPublicKeyFromBase58("SBondMDrcV3K4kxZR1HNVT7osZxAHVHgYXL5Ze1oMUv")
	DevnetProgramID  = solana.MustPublicKeyFromBase58("Aio4gaXjXzJNVLtzwtNVmSqGKpANtXhybbkhtAC94ji2")

	SystemProgramID             = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	TokenProgramID              = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AddressLookupTableProgramID = solana.MustPublicKeyFromBase58("AddressLookupTab1e1111111111111111111111111")
	SlotHashesSysvarID          = solana.MustPublicKeyFromBase58("SysvarS1otHashes111111111111111111111111111")
	NativeMint                  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

var (
	stateSeed       = []byte("STATE")
	lutSignerSeed   = []byte("LutSigner")
	oracleStatsSeed = []byte("OracleStats")
)

// Program derives the addresses owned by one deployment of the oracle
// program.
type Program struct {
	ID solana.PublicKey
}

func NewProgram(id solana.PublicKey) Program {
	return Program{ID: id}
}

// ProgramForNetwork maps "mainnet" or "devnet" to the deployed program.
func ProgramForNetwork(network string) (Program, error) {
	switch strings.ToLower(network) {
	case "mainnet", "mainnet-beta":
		return NewProgram(MainnetProgramID), nil
	case "devnet":
		return NewProgram(DevnetProgramID), nil
	default:
		return Program{}, fmt.Errorf("unknown network %q", network)
	}
}

// StateKey is the program's global state account.
func (p Program) StateKey() (solana.PublicKey, error) {
	key, _, err := solana.FindProgramAddress([][]byte{stateSeed}, p.ID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive state key: %w", err)
	}
	return key, nil
}

// LutSigner is the authority of the lookup table owned by owner.
func (p Program) LutSigner(owner solana.PublicKey) (solana.PublicKey, error) {
	key, _, err := solana.FindProgramAddress([][]byte{lutSignerSeed, owner[:]}, p.ID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive lut signer for %s: %w", owner, err)
	}
	return key, nil
}

// StatsKey is the reward bookkeeping account of an oracle.
func (p Program) StatsKey(oracle solana.PublicKey) (solana.PublicKey, error) {
	key, _, err := solana.FindProgramAddress([][]byte{oracleStatsSeed, oracle[:]}, p.ID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive stats key for %s: %w", oracle, err)
	}
	return key, nil
}

// LookupTableAddress derives the table created by authority at recentSlot.
func LookupTableAddress(authority solana.PublicKey, recentSlot uint64) (solana.PublicKey, error) {
	var slot [8]byte
	binary.LittleEndian.PutUint64(slot[:], recentSlot)
	key, _, err := solana.FindProgramAddress([][]byte{authority[:], slot[:]}, AddressLookupTableProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive lookup table address: %w", err)
	}
	return key, nil
}

// RewardVault is the queue's wrapped SOL token account.
func RewardVault(queue solana.PublicKey) (solana.PublicKey, error) {
	key, _, err := solana.FindAssociatedTokenAddress(queue, NativeMint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive reward vault for %s: %w", queue, err)
	}
	return key, nil
}
