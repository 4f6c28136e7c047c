package yaml

import (
	"gopkg.in/yaml.v3"
)

func Unmarshal(in []byte, out any) error {
	return yaml.Unmarshal(in, out)
}
