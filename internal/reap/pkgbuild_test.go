package reap

import (
	"reflect"
	"testing"
)

func TestParsePkgbuildBasics(t *testing.T) {
	content := `# Maintainer: somebody
pkgname=yay
pkgver=12.3.5
pkgrel=1
pkgdesc="Yet another yogurt"
arch=('x86_64')
depends=('pacman>6' 'git')
makedepends=('go')
conflicts=('yay-bin' 'yay-git')
provides=('yay')
source=("yay-12.3.5.tar.gz")
sha256sums=('abc123')
`
	info := ParsePkgbuild("yay", content, nil)
	if info.Package != "yay" {
		t.Errorf("Package = %q, want yay", info.Package)
	}
	if info.Version != "12.3.5" {
		t.Errorf("Version = %q, want 12.3.5", info.Version)
	}
	if info.Description != "Yet another yogurt" {
		t.Errorf("Description = %q", info.Description)
	}
	if want := []string{"pacman>6", "git"}; !reflect.DeepEqual(info.Dependencies, want) {
		t.Errorf("Dependencies = %v, want %v", info.Dependencies, want)
	}
	if want := []string{"go"}; !reflect.DeepEqual(info.MakeDependencies, want) {
		t.Errorf("MakeDependencies = %v, want %v", info.MakeDependencies, want)
	}
	if want := []string{"yay-bin", "yay-git"}; !reflect.DeepEqual(info.Conflicts, want) {
		t.Errorf("Conflicts = %v, want %v", info.Conflicts, want)
	}
	if want := []string{"yay-12.3.5.tar.gz"}; !reflect.DeepEqual(info.SourceFiles, want) {
		t.Errorf("SourceFiles = %v, want %v", info.SourceFiles, want)
	}
	if want := []string{"abc123"}; !reflect.DeepEqual(info.IntegrityChecks, want) {
		t.Errorf("IntegrityChecks = %v, want %v", info.IntegrityChecks, want)
	}
}

func TestParsePkgbuildMultilineArray(t *testing.T) {
	content := `pkgver=1.0
depends=(
    'glibc'
    'zlib'
    'openssl>=3'
)
`
	info := ParsePkgbuild("demo", content, nil)
	want := []string{"glibc", "zlib", "openssl>=3"}
	if !reflect.DeepEqual(info.Dependencies, want) {
		t.Errorf("Dependencies = %v, want %v", info.Dependencies, want)
	}
}

func TestParsePkgbuildUnterminatedArray(t *testing.T) {
	content := `pkgver=1.0
depends=(
    'glibc'
`
	info := ParsePkgbuild("demo", content, nil)
	if len(info.Dependencies) != 0 {
		t.Errorf("Dependencies = %v, want empty for unterminated array", info.Dependencies)
	}
	if info.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", info.Version)
	}
}

func TestParsePkgbuildIgnoresUnknownFields(t *testing.T) {
	content := `pkgver=2.0
optdepends=('foo: does things')
CFLAGS=(-O2)
`
	info := ParsePkgbuild("demo", content, nil)
	if len(info.Dependencies) != 0 || len(info.MakeDependencies) != 0 {
		t.Errorf("unexpected fields parsed: %+v", info)
	}
}

func TestEmitPkgbuildRoundTrip(t *testing.T) {
	orig := &PkgbuildInfo{
		Package:          "demo",
		Version:          "2.1-1",
		Description:      "a demo package",
		Dependencies:     []string{"glibc", "zlib>=1.2"},
		MakeDependencies: []string{"gcc"},
		Conflicts:        []string{"demo-git"},
		Provides:         []string{"demo"},
		SourceFiles:      []string{"demo-2.1.tar.gz"},
		IntegrityChecks:  []string{"deadbeef"},
	}
	parsed := ParsePkgbuild("demo", EmitPkgbuild(orig), nil)
	if !reflect.DeepEqual(orig, parsed) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", parsed, orig)
	}
}
