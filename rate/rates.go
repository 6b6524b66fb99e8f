package rate

import (
	"fmt"
	"strings"

	"github.com/vastspace/avatarwire/errs"
)

// SectionRates pairs the byte meter and update meter of one snapshot
// section.
type SectionRates struct {
	Bytes   Meter
	Updates Meter
}

// Rates holds one meter pair per snapshot section for a single direction
// (inbound or outbound). The empty name addresses the whole-buffer meter.
type Rates struct {
	GlobalPosition        SectionRates
	BoundingBox           SectionRates
	Orientation           SectionRates
	Scale                 SectionRates
	LookAtPosition        SectionRates
	AudioLoudness         SectionRates
	SensorToWorld         SectionRates
	AdditionalFlags       SectionRates
	ParentInfo            SectionRates
	LocalPosition         SectionRates
	HandControllers       SectionRates
	FaceTracker           SectionRates
	JointData             SectionRates
	JointDefaultPoseFlags SectionRates
	FarGrabJoints         SectionRates
	Buffer                SectionRates

	byName map[string]*SectionRates
}

// NewRates returns an empty meter set with the name registry populated.
func NewRates() *Rates {
	r := &Rates{}
	r.byName = map[string]*SectionRates{
		"":                      &r.Buffer,
		"globalPosition":        &r.GlobalPosition,
		"avatarBoundingBox":     &r.BoundingBox,
		"avatarOrientation":     &r.Orientation,
		"avatarScale":           &r.Scale,
		"lookAtPosition":        &r.LookAtPosition,
		"audioLoudness":         &r.AudioLoudness,
		"sensorToWorldMatrix":   &r.SensorToWorld,
		"additionalFlags":       &r.AdditionalFlags,
		"parentInfo":            &r.ParentInfo,
		"localPosition":         &r.LocalPosition,
		"handControllers":       &r.HandControllers,
		"faceTracker":           &r.FaceTracker,
		"jointData":             &r.JointData,
		"jointDefaultPoseFlags": &r.JointDefaultPoseFlags,
		"farGrabJoints":         &r.FarGrabJoints,
	}

	return r
}

// Section returns the meter pair registered under name.
func (r *Rates) Section(name string) (*SectionRates, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownRateName, name)
	}

	return s, nil
}

// Names returns every registered section name, the whole-buffer meter's
// empty name included.
func (r *Rates) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}

	return names
}

// DataRate returns the byte rate for name in KiB/s.
func (r *Rates) DataRate(name string) (float64, error) {
	s, err := r.Section(name)
	if err != nil {
		return 0, err
	}

	return s.Bytes.Rate() / 1024.0, nil
}

// UpdateRate returns the section update rate for name in events per second.
func (r *Rates) UpdateRate(name string) (float64, error) {
	s, err := r.Section(name)
	if err != nil {
		return 0, err
	}

	return s.Updates.Rate(), nil
}

// OutboundSuffix marks a rate query as targeting the outbound direction.
const OutboundSuffix = "Outbound"

// AvatarRates groups the inbound and outbound meter sets of one avatar and
// resolves the suffixed query names.
type AvatarRates struct {
	Inbound  *Rates
	Outbound *Rates
}

// NewAvatarRates returns meter sets for both directions.
func NewAvatarRates() *AvatarRates {
	return &AvatarRates{Inbound: NewRates(), Outbound: NewRates()}
}

func (a *AvatarRates) resolve(name string) (*Rates, string) {
	if base, ok := strings.CutSuffix(name, OutboundSuffix); ok {
		return a.Outbound, base
	}

	return a.Inbound, name
}

// DataRate returns the byte rate in KiB/s for a plain (inbound) or
// "Outbound"-suffixed name.
func (a *AvatarRates) DataRate(name string) (float64, error) {
	rates, base := a.resolve(name)
	return rates.DataRate(base)
}

// UpdateRate returns the update rate in events per second for a plain
// (inbound) or "Outbound"-suffixed name.
func (a *AvatarRates) UpdateRate(name string) (float64, error) {
	rates, base := a.resolve(name)
	return rates.UpdateRate(base)
}
