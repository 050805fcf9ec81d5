package api

import (
	"encoding/json"
	"io"

	"github.com/labstack/echo/v4"
)

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(c.Request().Body)
}

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshalInto(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
