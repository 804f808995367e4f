package cidr

import "testing"

func TestParseCanonicalizes(t *testing.T) {
	n, err := Parse("10.0.0.5/24")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got, want := n.String(), "10.0.0.0/24"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseRejectsIPv6(t *testing.T) {
	if _, err := Parse("2001:db8::/32"); err == nil {
		t.Error("expected error for IPv6 network")
	}
}

func TestSupernet(t *testing.T) {
	n := MustParse("10.0.0.128/25")
	got := n.Supernet()
	if want := MustParse("10.0.0.0/24"); !got.Equal(want) {
		t.Errorf("Supernet() = %s, want %s", got, want)
	}
}

func TestSubnets(t *testing.T) {
	n := MustParse("10.0.0.0/24")
	halves := n.Subnets()
	if want := MustParse("10.0.0.0/25"); !halves[0].Equal(want) {
		t.Errorf("left = %s, want %s", halves[0], want)
	}
	if want := MustParse("10.0.0.128/25"); !halves[1].Equal(want) {
		t.Errorf("right = %s, want %s", halves[1], want)
	}
}

func TestSubnetOf(t *testing.T) {
	sub := MustParse("10.0.0.0/26")
	super := MustParse("10.0.0.0/24")
	if !sub.SubnetOf(super) {
		t.Error("expected /26 to be a subnet of /24")
	}
	if !super.SubnetOf(super) {
		t.Error("a network is a subnet-of-or-equal to itself")
	}
	other := MustParse("10.1.0.0/24")
	if other.SubnetOf(super) {
		t.Error("10.1.0.0/24 must not be a subnet of 10.0.0.0/24")
	}
}

func TestIsLeft(t *testing.T) {
	cases := []struct {
		cidr string
		left bool
	}{
		{"10.0.0.0/25", true},
		{"10.0.0.128/25", false},
		{"10.0.0.0/26", true},
		{"10.0.0.64/26", false},
		{"10.0.0.128/26", true},
		{"10.0.0.192/26", false},
	}
	for _, c := range cases {
		n := MustParse(c.cidr)
		if got := n.IsLeft(); got != c.left {
			t.Errorf("IsLeft(%s) = %v, want %v", c.cidr, got, c.left)
		}
	}
}

func TestIsLeftMatchesSupernetSubnets(t *testing.T) {
	n := MustParse("10.0.0.64/26")
	halves := n.Supernet().Subnets()
	want := halves[0].Equal(n)
	if got := n.IsLeft(); got != want {
		t.Errorf("IsLeft() disagrees with supernet().subnets()[0] check: got %v want %v", got, want)
	}
}

func TestRootline(t *testing.T) {
	root := MustParse("10.0.0.0/24")
	target := MustParse("10.0.0.64/26")
	chain := Rootline(root, target)
	want := []string{"10.0.0.0/24", "10.0.0.0/25", "10.0.0.64/26"}
	if len(chain) != len(want) {
		t.Fatalf("len(chain) = %d, want %d", len(chain), len(want))
	}
	for i, w := range want {
		if chain[i].String() != w {
			t.Errorf("chain[%d] = %s, want %s", i, chain[i], w)
		}
	}
}

func TestWithPrefix(t *testing.T) {
	half := MustParse("10.0.0.0/25")
	got := half.WithPrefix(26)
	if want := MustParse("10.0.0.0/26"); !got.Equal(want) {
		t.Errorf("WithPrefix(26) = %s, want %s", got, want)
	}
}
