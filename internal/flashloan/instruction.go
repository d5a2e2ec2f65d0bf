package flashloan

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
)

// flashLoanData is the borsh body of the flash-loan instruction.
type flashLoanData struct {
	Amount uint64
}

// NewFlashLoanInstruction builds the instruction a borrowing program invokes on the
// lending program: the borrower signs read-only, the flashloan account is writable.
func NewFlashLoanInstruction(lendingProgram, borrower, flashloan solana.PublicKey, amount uint64) (*solana.GenericInstruction, error) {
	buf := new(bytes.Buffer)
	if err := bin.NewBorshEncoder(buf).Encode(flashLoanData{Amount: amount}); err != nil {
		return nil, fmt.Errorf("encode flash loan data: %w", err)
	}
	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(borrower, false, true),
		solana.NewAccountMeta(flashloan, true, false),
	}
	return solana.NewInstruction(lendingProgram, accounts, buf.Bytes()), nil
}

// DecodedFlashLoan is the lending program's view of a flash-loan instruction.
type DecodedFlashLoan struct {
	Program   solana.PublicKey
	Borrower  solana.PublicKey
	Flashloan solana.PublicKey
	Amount    uint64
}

// DecodeFlashLoanInstruction parses an instruction built by NewFlashLoanInstruction.
func DecodeFlashLoanInstruction(ix solana.Instruction) (DecodedFlashLoan, error) {
	accounts := ix.Accounts()
	if len(accounts) != 2 {
		return DecodedFlashLoan{}, fmt.Errorf("flash loan expects 2 accounts, got %d", len(accounts))
	}
	if !accounts[0].IsSigner || accounts[0].IsWritable {
		return DecodedFlashLoan{}, errors.New("borrower must be a read-only signer")
	}
	if !accounts[1].IsWritable {
		return DecodedFlashLoan{}, errors.New("flashloan account must be writable")
	}
	data, err := ix.Data()
	if err != nil {
		return DecodedFlashLoan{}, fmt.Errorf("read instruction data: %w", err)
	}
	var body flashLoanData
	if err := bin.NewBorshDecoder(data).Decode(&body); err != nil {
		return DecodedFlashLoan{}, fmt.Errorf("decode flash loan data: %w", err)
	}
	return DecodedFlashLoan{
		Program:   ix.ProgramID(),
		Borrower:  accounts[0].PublicKey,
		Flashloan: accounts[1].PublicKey,
		Amount:    body.Amount,
	}, nil
}
