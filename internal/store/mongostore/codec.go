package mongostore

import (
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	tDecimal     = reflect.TypeOf(decimal.Decimal{})
	tNullDecimal = reflect.TypeOf(decimal.NullDecimal{})
)

// Registry is the default bson registry plus Decimal128 codecs for
// shopspring decimals, so quantities never round-trip through float64.
func Registry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(tDecimal, bsoncodec.ValueEncoderFunc(encodeDecimal))
	reg.RegisterTypeDecoder(tDecimal, bsoncodec.ValueDecoderFunc(decodeDecimal))
	reg.RegisterTypeEncoder(tNullDecimal, bsoncodec.ValueEncoderFunc(encodeNullDecimal))
	reg.RegisterTypeDecoder(tNullDecimal, bsoncodec.ValueDecoderFunc(decodeNullDecimal))
	return reg
}

func encodeDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tDecimal {
		return bsoncodec.ValueEncoderError{Name: "DecimalEncodeValue", Types: []reflect.Type{tDecimal}, Received: val}
	}
	return writeDecimal(vw, val.Interface().(decimal.Decimal))
}

func encodeNullDecimal(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tNullDecimal {
		return bsoncodec.ValueEncoderError{Name: "NullDecimalEncodeValue", Types: []reflect.Type{tNullDecimal}, Received: val}
	}
	nd := val.Interface().(decimal.NullDecimal)
	if !nd.Valid {
		return vw.WriteNull()
	}
	return writeDecimal(vw, nd.Decimal)
}

func writeDecimal(vw bsonrw.ValueWriter, d decimal.Decimal) error {
	d128, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return fmt.Errorf("encode decimal %s: %w", d, err)
	}
	return vw.WriteDecimal128(d128)
}

func decodeDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tDecimal {
		return bsoncodec.ValueDecoderError{Name: "DecimalDecodeValue", Types: []reflect.Type{tDecimal}, Received: val}
	}
	d, err := readDecimal(vr)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(d))
	return nil
}

func decodeNullDecimal(_ bsoncodec.DecodeContext, vr bsonrw.ValueReader, val reflect.Value) error {
	if !val.CanSet() || val.Type() != tNullDecimal {
		return bsoncodec.ValueDecoderError{Name: "NullDecimalDecodeValue", Types: []reflect.Type{tNullDecimal}, Received: val}
	}
	switch vr.Type() {
	case bsontype.Null:
		if err := vr.ReadNull(); err != nil {
			return err
		}
		val.Set(reflect.ValueOf(decimal.NullDecimal{}))
		return nil
	case bsontype.Undefined:
		if err := vr.ReadUndefined(); err != nil {
			return err
		}
		val.Set(reflect.ValueOf(decimal.NullDecimal{}))
		return nil
	}
	d, err := readDecimal(vr)
	if err != nil {
		return err
	}
	val.Set(reflect.ValueOf(decimal.NewNullDecimal(d)))
	return nil
}

// readDecimal also accepts numbers written by hand into the database.
func readDecimal(vr bsonrw.ValueReader) (decimal.Decimal, error) {
	switch vr.Type() {
	case bsontype.Decimal128:
		d128, err := vr.ReadDecimal128()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(d128.String())
	case bsontype.Double:
		f, err := vr.ReadDouble()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat(f), nil
	case bsontype.Int32:
		i, err := vr.ReadInt32()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt32(i), nil
	case bsontype.Int64:
		i, err := vr.ReadInt64()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(i), nil
	case bsontype.String:
		s, err := vr.ReadString()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	}
	return decimal.Zero, fmt.Errorf("cannot decode %v into a decimal", vr.Type())
}
