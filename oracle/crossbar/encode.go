package crossbar

import (
	"encoding/base64"

	errorsmod "cosmossdk.io/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/GPTx-global/ondemand/oracle/types"
)

// EncodeJobs turns registry jobs into the base64 strings the gateway
// expects: each job is an OracleJob message prefixed with its varint length.
func EncodeJobs(spec *types.JobSpec) ([]string, error) {
	out := make([]string, 0, len(spec.Jobs))
	for i, raw := range spec.Jobs {
		encoded, err := encodeJob(raw)
		if err != nil {
			return nil, errorsmod.Wrapf(types.ErrDeserialize, "job %d of %s: %v", i, spec.FeedHash, err)
		}
		out = append(out, encoded)
	}
	return out, nil
}

func encodeJob(raw []byte) (string, error) {
	desc, err := jobDescriptor()
	if err != nil {
		return "", err
	}
	job := dynamicpb.NewMessage(desc)
	if err := protojson.Unmarshal(raw, job); err != nil {
		return "", err
	}
	msg, err := proto.MarshalOptions{Deterministic: true}.Marshal(job)
	if err != nil {
		return "", err
	}

	buf := protowire.AppendVarint(nil, uint64(len(msg)))
	buf = append(buf, msg...)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// DecodeJob reverses one EncodeJobs entry back to JSON.
func DecodeJob(encoded string) ([]byte, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	size, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	if uint64(len(buf)-n) != size {
		return nil, errorsmod.Wrapf(types.ErrDeserialize, "length prefix %d, body %d", size, len(buf)-n)
	}

	desc, err := jobDescriptor()
	if err != nil {
		return nil, err
	}
	job := dynamicpb.NewMessage(desc)
	if err := proto.Unmarshal(buf[n:], job); err != nil {
		return nil, err
	}
	return protojson.Marshal(job)
}
