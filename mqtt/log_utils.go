// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/eclipse/paho.golang/paho"
	"github.com/iancoleman/strcase"
	"github.com/kopi-greenbeans/mcmonitor/internal/log"
)

type logger struct{ log.Logger }

// Packet logs the exported fields of a paho packet at debug level.
func (l logger) Packet(ctx context.Context, name string, packet any) {
	// Reflection is expensive; skip it unless debug logging is on.
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}

	val := derefValue(reflect.ValueOf(packet))
	if val.Kind() != reflect.Struct {
		return
	}
	l.Log(ctx, slog.LevelDebug, name, packetAttrs(val)...)
}

func packetAttrs(val reflect.Value) []slog.Attr {
	typ := val.Type()
	var attrs []slog.Attr
	for i := range typ.NumField() {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		attrs = append(attrs, packetAttr(
			strcase.ToSnake(f.Name),
			derefValue(val.Field(i)),
		)...)
	}
	return attrs
}

func packetAttr(name string, val reflect.Value) []slog.Attr {
	if val.Kind() == reflect.Invalid || val.IsZero() {
		return nil
	}

	switch name {
	case "properties":
		if val.Kind() == reflect.Struct {
			return packetAttrs(val)
		}

	// The session client subscribes one topic per packet.
	case "subscriptions":
		if subs, ok := val.Interface().([]paho.SubscribeOptions); ok {
			return packetAttrs(reflect.ValueOf(subs[0]))
		}

	// strcase splits QoS into qo_s.
	case "qo_s":
		return []slog.Attr{slog.Any("qos", val.Interface())}

	case "password":
		return []slog.Attr{slog.String(name, "***")}
	}

	switch v := val.Interface().(type) {
	case []byte:
		return []slog.Attr{slog.String(name, string(v))}

	case paho.UserProperties:
		attrs := make([]any, len(v))
		for i, p := range v {
			attrs[i] = slog.String(p.Key, p.Value)
		}
		return []slog.Attr{slog.Group(name, attrs...)}
	}

	if val.Kind() == reflect.Struct {
		as := packetAttrs(val)
		if len(as) == 0 {
			return nil
		}
		group := make([]any, len(as))
		for i, a := range as {
			group[i] = a
		}
		return []slog.Attr{slog.Group(name, group...)}
	}

	return []slog.Attr{slog.Any(name, val.Interface())}
}

func derefValue(val reflect.Value) reflect.Value {
	for val.Kind() == reflect.Pointer || val.Kind() == reflect.Interface {
		val = val.Elem()
	}
	return val
}
