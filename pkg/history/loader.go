package history

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadFile reads an already discretized history from a YAML document:
//
//	magCat: 3.0
//	magTop: 9.5
//	fitBegin: 0
//	fitEnd: 10
//	intervals:
//	  - {begin: 0, end: 10, magC: 3.0}
//	ruptures:
//	  - {t: 0, mag: 5.0, mainshock: true}
func LoadFile(filename string) (*History, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read history file %s", filename)
	}

	return Load(data)
}

func Load(data []byte) (*History, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, errors.Wrap(err, "unable to decode history")
	}

	return New(spec)
}
