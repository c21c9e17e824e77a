package rpc

import (
	"encoding/json"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Documents cross the wire as their JSON form wrapped in Struct/ListValue. Numbers
// become doubles, which is exact for rounds, counts and sequences below 2^53.

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling document")
	}

	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "converting document to struct")
	}

	return &s, nil
}

func toList(v interface{}) (*structpb.ListValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling documents")
	}

	var l structpb.ListValue
	if err := protojson.Unmarshal(data, &l); err != nil {
		return nil, errors.Wrap(err, "converting documents to list")
	}

	return &l, nil
}

// DecodeStruct fills v from a document returned by the coordinator service.
func DecodeStruct(s *structpb.Struct, v interface{}) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshalling struct")
	}

	return errors.Wrap(json.Unmarshal(data, v), "unmarshalling document")
}

// DecodeList fills v, a pointer to a slice, from a list returned by the coordinator service.
func DecodeList(l *structpb.ListValue, v interface{}) error {
	data, err := protojson.Marshal(l)
	if err != nil {
		return errors.Wrap(err, "marshalling list")
	}

	return errors.Wrap(json.Unmarshal(data, v), "unmarshalling documents")
}
