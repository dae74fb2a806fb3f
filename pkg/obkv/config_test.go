package obkv

import "testing"

func TestParseFullUserNameStandard(t *testing.T) {
	user, tenant, cluster, err := ParseFullUserName("app@tenant1#cluster1")
	if err != nil {
		t.Fatalf("ParseFullUserName returned error: %v", err)
	}
	if user != "app" || tenant != "tenant1" || cluster != "cluster1" {
		t.Errorf("got (%q, %q, %q), want (%q, %q, %q)", user, tenant, cluster, "app", "tenant1", "cluster1")
	}
}

func TestParseFullUserNameLegacy(t *testing.T) {
	for _, sep := range []string{":", "-", "."} {
		full := "cluster1" + sep + "tenant1" + sep + "app"
		user, tenant, cluster, err := ParseFullUserName(full)
		if err != nil {
			t.Fatalf("ParseFullUserName(%q) returned error: %v", full, err)
		}
		if user != "app" || tenant != "tenant1" || cluster != "cluster1" {
			t.Errorf("ParseFullUserName(%q) = (%q, %q, %q), want (%q, %q, %q)",
				full, user, tenant, cluster, "app", "tenant1", "cluster1")
		}
	}
}

func TestParseFullUserNameMalformed(t *testing.T) {
	for _, full := range []string{
		"",
		"app@tenant1",
		"app#cluster1",
		"justoneword",
		"cluster1:tenant1", // only one separator occurrence
		"@tenant1#cluster1",
	} {
		if _, _, _, err := ParseFullUserName(full); err == nil {
			t.Errorf("ParseFullUserName(%q) succeeded, want error", full)
		}
	}
}

func TestValidatePanicsOnBlankParamURL(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("validate did not panic on blank param url")
		}
	}()
	c := defaultCfg()
	c.fullUserName = "app@tenant1#cluster1"
	_ = c.validate()
}

func TestValidateRequiresLoginFunc(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("validate did not panic on missing WithLoginFunc")
		}
	}()
	c := defaultCfg()
	c.paramURL = "http://example.com/services?Action=x&database=db1"
	c.fullUserName = "app@tenant1#cluster1"
	_ = c.validate()
}
