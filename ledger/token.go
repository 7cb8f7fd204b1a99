package ledger

import (
	mlnerrors "github.com/mlnlabs/mln/errors"
	"github.com/mlnlabs/mln/identity"
	"github.com/mlnlabs/mln/store"
	"github.com/mlnlabs/mln/transaction"
	"github.com/mlnlabs/mln/types"
)

func (e *Executor) applyTransfer(view *View, caller identity.Address, payload *transaction.Transfer) ([]byte, error) {
	if payload.Amount.IsZero() {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidAmount, mlnerrors.ErrMsgInvalidAmount)
	}
	if payload.To.IsAnonymous() {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidAddress, mlnerrors.ErrMsgInvalidAddress)
	}

	info, err := store.NewSymbolStore(view).GetSymbol(payload.Symbol)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeUnknownSymbol, mlnerrors.ErrMsgUnknownSymbol)
	}

	return nil, moveBalance(store.NewAccountStore(view), caller, payload.To, payload.Symbol, payload.Amount)
}

// moveBalance debits from and credits to. It reads the credit side after the
// debit lands in the overlay, so a self-transfer nets to no change instead of
// double counting.
func moveBalance(accounts *store.AccountStore, from, to identity.Address, symbol string, amount *types.Amount) error {
	fromBalance, err := accounts.GetBalance(from, symbol)
	if err != nil {
		return err
	}
	if fromBalance.Lt(&amount.Int) {
		return mlnerrors.NewError(mlnerrors.ErrCodeInsufficientFunds, mlnerrors.ErrMsgInsufficientFunds)
	}
	var debited types.Amount
	debited.Sub(&fromBalance.Int, &amount.Int)
	if err := accounts.SetBalance(from, symbol, &debited); err != nil {
		return err
	}

	toBalance, err := accounts.GetBalance(to, symbol)
	if err != nil {
		return err
	}
	var credited types.Amount
	if _, overflow := credited.AddOverflow(&toBalance.Int, &amount.Int); overflow {
		return mlnerrors.NewError(mlnerrors.ErrCodeAmountOverflow, mlnerrors.ErrMsgAmountOverflow)
	}
	return accounts.SetBalance(to, symbol, &credited)
}

func (e *Executor) applyMint(view *View, caller identity.Address, payload *transaction.Mint) ([]byte, error) {
	if payload.Amount.IsZero() {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidAmount, mlnerrors.ErrMsgInvalidAmount)
	}
	if payload.To.IsAnonymous() {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidAddress, mlnerrors.ErrMsgInvalidAddress)
	}

	symbols := store.NewSymbolStore(view)
	info, err := symbols.GetSymbol(payload.Symbol)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeUnknownSymbol, mlnerrors.ErrMsgUnknownSymbol)
	}
	if info.Owner != caller {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodePermissionDenied, mlnerrors.ErrMsgPermissionDenied)
	}

	// The supply caps every balance, so checking overflow here covers the
	// credit below as well.
	supply := info.TotalSupply
	if supply == nil {
		supply = types.NewAmount(0)
	}
	var grown types.Amount
	if _, overflow := grown.AddOverflow(&supply.Int, &payload.Amount.Int); overflow {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeAmountOverflow, mlnerrors.ErrMsgAmountOverflow)
	}
	info.TotalSupply = &grown
	if err := symbols.PutSymbol(payload.Symbol, info); err != nil {
		return nil, err
	}

	accounts := store.NewAccountStore(view)
	balance, err := accounts.GetBalance(payload.To, payload.Symbol)
	if err != nil {
		return nil, err
	}
	var credited types.Amount
	credited.Add(&balance.Int, &payload.Amount.Int)
	return nil, accounts.SetBalance(payload.To, payload.Symbol, &credited)
}

func (e *Executor) applyBurn(view *View, caller identity.Address, payload *transaction.Burn) ([]byte, error) {
	if payload.Amount.IsZero() {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInvalidAmount, mlnerrors.ErrMsgInvalidAmount)
	}

	symbols := store.NewSymbolStore(view)
	info, err := symbols.GetSymbol(payload.Symbol)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeUnknownSymbol, mlnerrors.ErrMsgUnknownSymbol)
	}
	if info.Owner != caller {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodePermissionDenied, mlnerrors.ErrMsgPermissionDenied)
	}

	accounts := store.NewAccountStore(view)
	balance, err := accounts.GetBalance(payload.From, payload.Symbol)
	if err != nil {
		return nil, err
	}
	if balance.Lt(&payload.Amount.Int) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInsufficientFunds, mlnerrors.ErrMsgInsufficientFunds)
	}
	var debited types.Amount
	debited.Sub(&balance.Int, &payload.Amount.Int)
	if err := accounts.SetBalance(payload.From, payload.Symbol, &debited); err != nil {
		return nil, err
	}

	// A supply record short of the burned balance means the recorded supply
	// drifted. Refuse the command; a scheduled supply backfill repairs the
	// record.
	if info.TotalSupply == nil || info.TotalSupply.Lt(&payload.Amount.Int) {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeInternal, "Token supply record is inconsistent")
	}
	var shrunk types.Amount
	shrunk.Sub(&info.TotalSupply.Int, &payload.Amount.Int)
	info.TotalSupply = &shrunk
	return nil, symbols.PutSymbol(payload.Symbol, info)
}

func (e *Executor) applyTokenUpdate(view *View, caller identity.Address, payload *transaction.TokenUpdate) ([]byte, error) {
	symbols := store.NewSymbolStore(view)
	info, err := symbols.GetSymbol(payload.Symbol)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodeUnknownSymbol, mlnerrors.ErrMsgUnknownSymbol)
	}
	if info.Owner != caller {
		return nil, mlnerrors.NewError(mlnerrors.ErrCodePermissionDenied, mlnerrors.ErrMsgPermissionDenied)
	}

	// Handing the symbol to the anonymous address freezes mint and burn
	// forever; allowed, deliberately.
	info.Owner = payload.NewOwner
	return nil, symbols.PutSymbol(payload.Symbol, info)
}
