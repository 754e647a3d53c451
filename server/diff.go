package server

import (
	"encoding/json"
)

//The state replication protocol describes every mutation of a named
//collection as a small JSON operation. Connected clients apply these
//operations to their local copy of the collection, so the server never has
//to resend whole entities after the initial snapshot.
//
//Entities take part in replication through the Syncable interface. Each
//entity type owns a package level FieldMap which is built once and maps
//field names to accessor functions, so encoding never has to introspect
//values at runtime.

type Op map[string]interface{}

type FieldMap map[string]func(Syncable) (interface{}, error)

type Syncable interface {
	SyncID() string
	FieldMap() FieldMap
}

//InsertOp projects every registered field of the entity, minus its id which
//travels in the dedicated id key.
func InsertOp(e Syncable, collection string, logger *Logger) Op {

	op := Op{
		"_o": "insert",
		"_c": collection,
		"id": e.SyncID(),
	}

	for name, accessor := range e.FieldMap() {
		value, err := accessor(e)
		if err != nil {
			//A field that can't be projected is omitted, the rest of the op is still usable
			logger.Errorw("Couldn't generate insert op for field", "collection", collection, "field", name, "error", err)
			continue
		}
		op[name] = value
	}

	return op

}

//UpdateOp projects only the named fields. Field names that are not present
//in the entity's registry are silently skipped.
func UpdateOp(e Syncable, collection string, fields []string, logger *Logger) Op {

	op := Op{
		"_o": "update",
		"_c": collection,
		"id": e.SyncID(),
	}

	registry := e.FieldMap()

	for _, name := range fields {
		accessor, ok := registry[name]
		if !ok {
			continue
		}
		value, err := accessor(e)
		if err != nil {
			logger.Errorw("Couldn't generate update op for field", "collection", collection, "field", name, "error", err)
			continue
		}
		op[name] = value
	}

	return op

}

func RemoveOp(e Syncable, collection string) Op {
	return Op{
		"_o": "remove",
		"_c": collection,
		"id": e.SyncID(),
	}
}

//ClearOp tells receivers to drop everything they know for the collection.
//It is a remove op without an id, used for full snapshot replacement.
func ClearOp(collection string) Op {
	return Op{
		"_o": "remove",
		"_c": collection,
	}
}

//MarshalEnvelope wraps the given ops into a single ordered colupd message.
//Ops that belong to one logical change should always travel in one envelope.
func MarshalEnvelope(logger *Logger, ops ...Op) []byte {

	envelope := map[string]interface{}{
		"msg": "colupd",
		"ops": ops,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		logger.Errorw("Couldn't marshal colupd envelope", "error", err)
		return nil
	}

	return data

}
