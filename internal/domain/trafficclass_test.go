package domain

import "testing"

func TestTrafficClassValidate(t *testing.T) {
	valid := func() *TrafficClass {
		return &TrafficClass{
			ID:                  "c1",
			PolicyID:            "p1",
			Name:                "voice",
			Priority:            PriorityHighest,
			BandwidthPercentage: 30,
			DSCPMarking:         "ef",
		}
	}

	t.Run("valid class passes", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("empty name fails", func(t *testing.T) {
		c := valid()
		c.Name = "  "
		if err := c.Validate(); !IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown priority fails", func(t *testing.T) {
		c := valid()
		c.Priority = "urgent"
		if err := c.Validate(); !IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("bandwidth below range fails", func(t *testing.T) {
		c := valid()
		c.BandwidthPercentage = -1
		if err := c.Validate(); !IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("bandwidth above range fails", func(t *testing.T) {
		c := valid()
		c.BandwidthPercentage = 100.5
		if err := c.Validate(); !IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("boundary values pass", func(t *testing.T) {
		for _, pct := range []float64{0, 100} {
			c := valid()
			c.BandwidthPercentage = pct
			if err := c.Validate(); err != nil {
				t.Errorf("bandwidth %v: expected no error, got %v", pct, err)
			}
		}
	})
}

func TestPriorityRank(t *testing.T) {
	order := []Priority{PriorityHighest, PriorityHigh, PriorityNormal, PriorityLow, PriorityLowest}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("expected %s to rank before %s", order[i-1], order[i])
		}
	}

	if Priority("bogus").Valid() {
		t.Error("expected bogus priority to be invalid")
	}
	if Priority("bogus").Rank() <= PriorityLowest.Rank() {
		t.Error("expected unknown priority to rank after lowest")
	}
}

func TestTrafficClassUpdateApply(t *testing.T) {
	c := &TrafficClass{
		Name:                "bulk",
		Priority:            PriorityLow,
		BandwidthPercentage: 10,
		DSCPMarking:         "af11",
	}

	name := "bulk-data"
	pct := 20.0
	changes := TrafficClassUpdate{Name: &name, BandwidthPercentage: &pct}.Apply(c)

	if c.Name != "bulk-data" || c.BandwidthPercentage != 20 {
		t.Errorf("update not applied: %+v", c)
	}
	if len(changes) != 2 {
		t.Errorf("expected 2 changes, got %v", changes)
	}
	if changes["name"] != "bulk-data" {
		t.Errorf("expected name change recorded, got %v", changes)
	}

	// Setting a field to its current value is not a change.
	same := PriorityLow
	changes = TrafficClassUpdate{Priority: &same}.Apply(c)
	if len(changes) != 0 {
		t.Errorf("expected no changes, got %v", changes)
	}
}

func TestClassifierValidate(t *testing.T) {
	valid := func() *TrafficClassifier {
		return &TrafficClassifier{
			ID:                   "f1",
			ClassID:              "c1",
			Name:                 "sip",
			Protocol:             ProtocolUDP,
			DestinationPortStart: 5060,
			DestinationPortEnd:   5061,
		}
	}

	t.Run("valid classifier passes", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("inverted port range fails", func(t *testing.T) {
		f := valid()
		f.DestinationPortStart = 6000
		if err := f.Validate(); !IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("port out of range fails", func(t *testing.T) {
		f := valid()
		f.DestinationPortEnd = 70000
		if err := f.Validate(); !IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown protocol fails", func(t *testing.T) {
		f := valid()
		f.Protocol = "sctp"
		if err := f.Validate(); !IsValidation(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("single-port range passes", func(t *testing.T) {
		f := valid()
		f.DestinationPortStart = 443
		f.DestinationPortEnd = 443
		f.Protocol = ProtocolTCP
		if err := f.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}
