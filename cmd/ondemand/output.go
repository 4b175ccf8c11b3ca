package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/GPTx-global/ondemand/oracle/lut"
	"github.com/GPTx-global/ondemand/oracle/pullfeed"
	"github.com/GPTx-global/ondemand/oracle/types"
)

type accountView struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

type instructionView struct {
	ProgramID string        `json:"program_id"`
	Accounts  []accountView `json:"accounts"`
	Data      string        `json:"data"`
}

type quoteView struct {
	Oracle string   `json:"oracle"`
	Values []string `json:"values,omitempty"`
	Signed bool     `json:"signed"`
	Errors []string `json:"errors,omitempty"`
}

type tableView struct {
	Key       string `json:"key"`
	Owner     string `json:"owner"`
	Addresses int    `json:"addresses"`
}

type updateView struct {
	Slot         uint64          `json:"slot"`
	Instruction  instructionView `json:"instruction"`
	SuccessCount int             `json:"success_count"`
	Quotes       []quoteView     `json:"quotes"`
	Failures     []string        `json:"failures,omitempty"`
	LookupTables []tableView     `json:"lookup_tables"`
}

func newInstructionView(ix *solana.GenericInstruction) (instructionView, error) {
	data, err := ix.Data()
	if err != nil {
		return instructionView{}, err
	}

	view := instructionView{
		ProgramID: ix.ProgramID().String(),
		Data:      base64.StdEncoding.EncodeToString(data),
	}
	for _, m := range ix.Accounts() {
		view.Accounts = append(view.Accounts, accountView{Pubkey: m.PublicKey.String(), Signer: m.IsSigner, Writable: m.IsWritable})
	}
	return view, nil
}

func newTableViews(tables []*lut.Table) []tableView {
	out := make([]tableView, 0, len(tables))
	for _, t := range tables {
		out = append(out, tableView{Key: t.Key.String(), Owner: t.Owner.String(), Addresses: len(t.Addresses)})
	}
	return out
}

func formatValues(values ...sdkmath.Int) []string {
	var out []string
	for _, v := range values {
		if v.IsNil() {
			continue
		}
		out = append(out, types.FormatDecimal(v))
	}
	return out
}

func newUpdateView(u *pullfeed.Update) (updateView, error) {
	ix, err := newInstructionView(u.Instruction)
	if err != nil {
		return updateView{}, err
	}

	view := updateView{
		Slot:         u.Slot,
		Instruction:  ix,
		SuccessCount: u.SuccessCount,
		Failures:     u.Failures,
		LookupTables: newTableViews(u.LookupTables),
	}
	for _, q := range u.Quotes {
		qv := quoteView{Oracle: q.Oracle.String(), Values: formatValues(q.Value), Signed: q.Signed}
		if q.Error != "" {
			qv.Errors = []string{q.Error}
		}
		view.Quotes = append(view.Quotes, qv)
	}
	return view, nil
}

func newUpdateManyView(u *pullfeed.UpdateMany) (updateView, error) {
	ix, err := newInstructionView(u.Instruction)
	if err != nil {
		return updateView{}, err
	}

	view := updateView{
		Slot:         u.Slot,
		Instruction:  ix,
		SuccessCount: u.SuccessCount,
		LookupTables: newTableViews(u.LookupTables),
	}
	for _, f := range u.Feeds {
		view.Failures = append(view.Failures, f.Errors()...)
	}
	for _, r := range u.Rows {
		view.Quotes = append(view.Quotes, quoteView{
			Oracle: r.Oracle.String(),
			Values: formatValues(r.Values...),
			Signed: r.Signed,
			Errors: r.Errors,
		})
	}
	return view, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
