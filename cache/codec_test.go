package cache

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
)

// base64Codec wraps JSONCodec so stored payloads are not plain JSON.
type base64Codec struct{}

func (base64Codec) Encode(v any) (string, error) {
	s, err := JSONCodec{}.Encode(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString([]byte(s)), nil
}

func (base64Codec) Decode(payload string, out any) error {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return err
	}
	return JSONCodec{}.Decode(string(data), out)
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	codec := JSONCodec{}
	want := User{Name: "Joel", Email: "j@x"}

	payload, err := codec.Encode(want)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if payload != `{"name":"Joel","email":"j@x"}` {
		t.Errorf("payload = %s", payload)
	}

	var got User
	if err := codec.Decode(payload, &got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestWithCodec(t *testing.T) {
	c := New(WithCodec(base64Codec{}))
	ctx := context.Background()

	got, err := Remember(ctx, c, "k", 1, func(context.Context) (User, error) {
		return User{Name: "Joel"}, nil
	})
	if err != nil || got.Name != "Joel" {
		t.Fatalf("Remember = (%+v, %v)", got, err)
	}

	e, _ := c.Lookup("k")
	if e.Payload == `{"name":"Joel","email":""}` {
		t.Error("payload should be encoded by the custom codec")
	}

	got, ok, err := Get[User](ctx, c, "k")
	if err != nil || !ok || got.Name != "Joel" {
		t.Errorf("Get = (%+v, %v, %v)", got, ok, err)
	}
}

func TestWithCodec_DecodeFailure(t *testing.T) {
	c := New(WithCodec(base64Codec{}))
	c.store("k", "not base64!", NoExpiry, "")

	_, _, err := Get[User](context.Background(), c, "k")
	var decErr *DecodeError
	if !errors.As(err, &decErr) || decErr.Key != "k" {
		t.Errorf("error = %v, want *DecodeError for k", err)
	}
}
