package block

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/solara-labs/solara-chain/pkg/tx"
	"github.com/solara-labs/solara-chain/pkg/types"
)

func testHeader() *Header {
	return &Header{
		Version:   CurrentVersion,
		Network:   types.NetTestnet,
		Previous:  types.Hash{0x01},
		Height:    7,
		Timestamp: 1700000000,
		CoinsRoot: types.Hash{0x02},
	}
}

func testTx(seed byte) *tx.Transaction {
	return tx.NewBuilder(types.TxNormal).
		Input(types.CoinID{TxID: types.Hash{seed}, Index: 0}).
		Output(types.Hash{0xaa}, uint256.NewInt(10), types.DenomSol).
		Fee(uint256.NewInt(1000)).
		Covenant([]byte{0x60}).
		Build()
}

func TestHeaderHashDeterministic(t *testing.T) {
	h1 := testHeader()
	h2 := testHeader()
	if h1.Hash() != h2.Hash() {
		t.Fatal("identical headers hash differently")
	}
}

func TestHeaderHashSensitivity(t *testing.T) {
	base := testHeader().Hash()

	mutate := []func(*Header){
		func(h *Header) { h.Height++ },
		func(h *Header) { h.Network = types.NetMainnet },
		func(h *Header) { h.CoinsRoot = types.Hash{0xff} },
		func(h *Header) { h.PoolsRoot = types.Hash{0x03} },
		func(h *Header) { h.StakesRoot = types.Hash{0x04} },
		func(h *Header) { h.HistoryRoot = types.Hash{0x05} },
		func(h *Header) { h.TransactionsRoot = types.Hash{0x06} },
		func(h *Header) { h.FeePool = *uint256.NewInt(1) },
		func(h *Header) { h.FeeMultiplier = *uint256.NewInt(9) },
	}
	for i, m := range mutate {
		h := testHeader()
		m(h)
		if h.Hash() == base {
			t.Errorf("mutation %d did not change the header hash", i)
		}
	}
}

func TestValidateAcceptsEmptyBlock(t *testing.T) {
	b := NewBlock(testHeader(), nil, nil)
	if err := b.Validate(); err != nil {
		t.Fatalf("empty block rejected: %v", err)
	}
}

func TestValidateNilHeader(t *testing.T) {
	b := &Block{}
	if err := b.Validate(); !errors.Is(err, ErrNilHeader) {
		t.Fatalf("want ErrNilHeader, got %v", err)
	}
}

func TestValidateBadVersion(t *testing.T) {
	h := testHeader()
	h.Version = 9
	if err := NewBlock(h, nil, nil).Validate(); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("want ErrBadVersion, got %v", err)
	}
}

func TestValidateBadNetwork(t *testing.T) {
	h := testHeader()
	h.Network = types.NetID(0x55)
	if err := NewBlock(h, nil, nil).Validate(); !errors.Is(err, ErrBadNetwork) {
		t.Fatalf("want ErrBadNetwork, got %v", err)
	}
}

func TestValidateZeroTimestamp(t *testing.T) {
	h := testHeader()
	h.Timestamp = 0
	if err := NewBlock(h, nil, nil).Validate(); !errors.Is(err, ErrZeroTimestamp) {
		t.Fatalf("want ErrZeroTimestamp, got %v", err)
	}
}

func TestValidateDuplicateTx(t *testing.T) {
	txn := testTx(0x01)
	b := NewBlock(testHeader(), []*tx.Transaction{txn, txn}, nil)
	if err := b.Validate(); !errors.Is(err, ErrDuplicateTx) {
		t.Fatalf("want ErrDuplicateTx, got %v", err)
	}
}

func TestValidateIntraBlockDoubleSpend(t *testing.T) {
	a := testTx(0x01)
	b := testTx(0x02)
	b.Inputs[0] = a.Inputs[0]
	blk := NewBlock(testHeader(), []*tx.Transaction{a, b}, nil)
	if err := blk.Validate(); !errors.Is(err, ErrDuplicateBlockInput) {
		t.Fatalf("want ErrDuplicateBlockInput, got %v", err)
	}
}

func TestBlockHashMatchesHeader(t *testing.T) {
	h := testHeader()
	b := NewBlock(h, nil, &ProposerAction{FeeMultiplierDelta: 1})
	if b.Hash() != h.Hash() {
		t.Fatal("block hash differs from header hash")
	}
	if (&Block{}).Hash() != (types.Hash{}) {
		t.Fatal("nil-header block hash not zero")
	}
}
