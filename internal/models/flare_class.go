// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidFlareClass is returned when a class label cannot be parsed.
var ErrInvalidFlareClass = errors.New("invalid flare class")

// classScale maps the X-ray class letter to its peak flux in W/m^2 at magnitude 1.0.
var classScale = map[byte]float64{
	'A': 1e-8,
	'B': 1e-7,
	'C': 1e-6,
	'M': 1e-5,
	'X': 1e-4,
}

// FlareClass is a parsed GOES X-ray classification such as "M5.0".
// The magnitude is kept in hundredths so tolerance checks are exact.
type FlareClass struct {
	Letter     byte
	Hundredths int
}

// ParseFlareClass parses labels like "X1.1", "M5", "c8.25".
func ParseFlareClass(label string) (FlareClass, error) {
	s := strings.ToUpper(strings.TrimSpace(label))
	if len(s) < 2 {
		return FlareClass{}, fmt.Errorf("%w: %q", ErrInvalidFlareClass, label)
	}
	letter := s[0]
	if _, ok := classScale[letter]; !ok {
		return FlareClass{}, fmt.Errorf("%w: unknown letter in %q", ErrInvalidFlareClass, label)
	}

	whole, frac, hasFrac := strings.Cut(s[1:], ".")
	if whole == "" {
		return FlareClass{}, fmt.Errorf("%w: missing magnitude in %q", ErrInvalidFlareClass, label)
	}
	w, err := strconv.Atoi(whole)
	if err != nil || w < 0 {
		return FlareClass{}, fmt.Errorf("%w: magnitude %q", ErrInvalidFlareClass, label)
	}

	f := 0
	if hasFrac {
		if frac == "" || len(frac) > 2 {
			return FlareClass{}, fmt.Errorf("%w: magnitude precision %q", ErrInvalidFlareClass, label)
		}
		if len(frac) == 1 {
			frac += "0"
		}
		f, err = strconv.Atoi(frac)
		if err != nil || f < 0 {
			return FlareClass{}, fmt.Errorf("%w: magnitude %q", ErrInvalidFlareClass, label)
		}
	}

	return FlareClass{Letter: letter, Hundredths: w*100 + f}, nil
}

// Magnitude returns the numeric magnitude (5.0 for "M5.0").
func (c FlareClass) Magnitude() float64 {
	return float64(c.Hundredths) / 100
}

// Flux returns the peak X-ray flux implied by the class, used to order flares
// by strength across letters.
func (c FlareClass) Flux() float64 {
	return classScale[c.Letter] * c.Magnitude()
}

// WithinTolerance reports whether two classes share a letter and their
// magnitudes differ by at most tolerance (e.g. 0.2).
func (c FlareClass) WithinTolerance(other FlareClass, tolerance float64) bool {
	if c.Letter != other.Letter {
		return false
	}
	diff := c.Hundredths - other.Hundredths
	if diff < 0 {
		diff = -diff
	}
	return diff <= int(math.Round(tolerance*100))
}

func (c FlareClass) String() string {
	return fmt.Sprintf("%c%.1f", c.Letter, c.Magnitude())
}
