package npk

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// IsBinaryData reports whether data looks binary rather than textual. Text
// files carry no NUL bytes, and their leading bytes decode as UTF-8.
func IsBinaryData(data []byte) bool {
	if bytes.IndexByte(data[:min(len(data), 4000)], 0x00) >= 0 {
		return true
	}
	return !utf8.Valid(data[:min(len(data), 2048)])
}

// DetectExt sniffs a file extension from decoded entry data. Entries flagged
// as text are matched against content markers, all others against byte
// signatures. Unrecognized data falls back to "dat".
func DetectExt(data []byte, flags EntryFlags) string {
	if len(data) == 0 {
		return "empty"
	}
	if flags&FlagText != 0 {
		if ext := textExt(data); ext != "" {
			return ext
		}
	} else if ext := binaryExt(data); ext != "" {
		return ext
	}
	return "dat"
}

// sigAt reports whether data carries sig at byte offset off. Offsets may be
// computed from the tail and go negative on short inputs; those never match.
func sigAt(data []byte, off int, sig string) bool {
	return off >= 0 && len(data) >= off+len(sig) && string(data[off:off+len(sig)]) == sig
}

// binaryExt matches data against known binary signatures, first hit wins.
func binaryExt(data []byte) string {
	switch {
	case sigAt(data, 0, "PVR"):
		return "pvr"
	case sigAt(data, 0, "\x34\x80\xC8\xBB"):
		return "mesh"
	case sigAt(data, 0, "RIFF") && bytes.Contains(data, []byte("FEV")):
		return "fev"
	case sigAt(data, 0, "RIFF") && bytes.Contains(data, []byte("WAVE")):
		return "wem"
	case sigAt(data, 0, "RAWANIMA"):
		return "rawanimation"
	case sigAt(data, 0, "NEOXBIN1"):
		return "uiprefab"
	case sigAt(data, 0, "SKELETON"):
		return "skeleton"
	case sigAt(data, 0, "\x01\x00\x05\x00\x00\x00"):
		return "foliage"
	case sigAt(data, 0, "NEOXMESH"):
		return "uimesh"
	case sigAt(data, 0, "NVidia(r) GameWorks Blast(tm) v.1"):
		return "blast"
	case sigAt(data, 0, "\xE3\x00\x00\x00"), sigAt(data, 0, "\x63\x00\x00\x00"),
		sigAt(data, 0, "\x4C\x0F\x00\x00"), sigAt(data, 0, "\x27\xE3\x00\x01"):
		return "pyc"
	case sigAt(data, 0, "\x13\xAB\xA1\x5C"):
		return "astc"
	case sigAt(data, 0, "hit"):
		return "hit"
	case sigAt(data, 0, "PKM"):
		return "pkm"
	case sigAt(data, 0, "DDS"):
		return "dds"
	case sigAt(data, len(data)-18, "TRUEVISION-XFILE"),
		sigAt(data, 0, "\x00\x00\x02"), sigAt(data, 0, "\x0D\x00\x02"):
		return "tga"
	case sigAt(data, 0, "NFXO"):
		return "nfx"
	case bytes.HasPrefix(data, binxmlMagic):
		switch {
		case bytes.Contains(data, []byte("Material")):
			return "mtg"
		case bytes.Contains(data, []byte("GisFiles")):
			return "gim"
		case bytes.Contains(data, []byte("Anim")):
			return "ags"
		}
		return "unknown1"
	case sigAt(data, 0, "CompBlks"):
		return "cbk"
	case sigAt(data, 0, "BM"):
		return "bmp"
	case sigAt(data, 1, "KTX"):
		return "ktx"
	case sigAt(data, 0, "blastmesh"):
		return "blastmesh"
	case sigAt(data, 0, "clothasset"):
		return "clothasset"
	case sigAt(data, 1, "PNG"):
		return "png"
	case sigAt(data, 0, "FSB5"):
		return "fsb"
	case sigAt(data, 0, "VANT"):
		return "vant"
	case sigAt(data, 0, "MDMP"):
		return "mdmp"
	case sigAt(data, 0, "RGIS"):
		return "gis"
	case sigAt(data, 0, "NTRK"):
		return "trk"
	case sigAt(data, 0, "OggS"):
		return "ogg"
	case sigAt(data, 0, "\xFF\xD8\xFF\xE1"):
		return "jpg"
	case sigAt(data, 0, "BKHD"):
		return "bnk"
	case sigAt(data, 0, "TZif"):
		return "tzif"
	case sigAt(data, 6, "JFIF"):
		return "jfif"
	case sigAt(data, 4, "ftyp"):
		return "mp4"
	case bytes.Contains(data, []byte("\x00\x00\x00\x00\x00\x55\x55")):
		return "animation"
	}
	return ""
}

// textExt matches data against content markers of the text formats the
// engine ships, first hit wins.
func textExt(data []byte) string {
	// Skip marker scans past 100 MB.
	if len(data) >= 100000000 {
		return ""
	}
	has := func(marker string) bool { return bytes.Contains(data, []byte(marker)) }
	switch {
	case has("<Material"):
		return "mtl"
	case has("<MaterialGroup"): // shadowed by "<Material" above
		return "mtg"
	case has("<MetaInfo"):
		return "pvr.meta"
	case has("SHEX") && has("OSGN"):
		return "binary"
	case has("<Section"):
		return "sec"
	case has("<SubMesh"):
		return "gim"
	case has("<FxGroup"):
		return "sfx"
	case has("<Track"):
		return "trackgroup"
	case has("<Instances"):
		return "decal"
	case has("<Physics"):
		return "col"
	case has("<LODPolicy"), has("<LODProfile"):
		return "lod"
	case has(`Type="Animation"`):
		return "animation"
	case has("DisableBakeLightProbe="):
		return "prefab"
	case has("<Scene"):
		return "scn"
	case has(`"ParticleSystemTemplate"`):
		return "pse"
	case has("<MainBody"):
		return "nxcompute"
	case has("<MapSkeletonToMeshBone"):
		return "skeletonextra"
	case has("<ShadingModel"):
		return "nxshader"
	case has("<BlastDynamic"):
		return "blt"
	case has(`"ParticleAudio"`):
		return "psemusic"
	case has("<BlendSpace"):
		if has(`is2D="false"`) {
			return "blendspace1d"
		}
		return "blendspace"
	case has("<AnimationConfig"):
		return "animconfig"
	case has("<AnimationGraph"):
		return "animgraph"
	case has(`<Head Type="Timeline"`):
		return "timeline"
	case has("<Chain"):
		return "physicalbone"
	case has("<PostProcess"):
		return "postprocess"
	case has(`"mesh_import_options":{`):
		return "nxmeta"
	case has("<SceneConfig"): // shadowed by "<Scene" above
		return "scnex"
	case has("<LocalPoints"):
		return "localweather"
	case has(`GeoBatchHint="0"`):
		return "gimext"
	case has(`"AssetType":"HapticsData"`):
		return "haptic"
	case has("<LocalFogParams"):
		return "localfogparams"
	case has("<Audios"), has("<AudioSource"):
		return "prefabaudio"
	case has(`"ReferenceSkeleton`):
		return "featureschema"
	case has("<Relationships"):
		return "xml.rels"
	case has("<Waterfall"):
		return "waterfall"
	case has(`"ReferenceSkeletonPath"`): // shadowed by `"ReferenceSkeleton` above
		return "mirrortable"
	case has("<ClothAsset"):
		return "clt"
	case has("<plist"):
		return "plist"
	case has("<ShaderCompositor"), has("<ShaderFeature"),
		has("<ShaderIndexes"), has("<RenderTrigger"):
		return "render"
	case has("<SkeletonRig"):
		return "skeletonrig"
	case has("format: ") && has("filter: "):
		return "atlas"
	case has("<ShaderCache"):
		return "cache"
	case has("char") && has("width=") && has("height="):
		return "fnt"
	case has("<AllCaches"):
		return "info"
	case has("<AllPreloadCaches"):
		return "list"
	case has("<Remove_Files"):
		return "map"
	case has(`<HLSL File="`):
		return "md5"
	case has("<EnvParticle"):
		return "envp"
	case has("<TextureGroup"):
		return "txg"
	case has("?xml"):
		return "xml"
	}
	return ""
}

// Category buckets entries by what the detected extension says they hold.
type Category string

const (
	CategoryMesh      Category = "Mesh"
	CategoryTexture   Category = "Texture"
	CategoryCharacter Category = "Character"
	CategoryBank      Category = "Bank"
	CategorySkin      Category = "Skin"
	CategoryXML       Category = "NeoX XML"
	CategoryOther     Category = "Other"
)

// FileCategory maps an extension, case-insensitively, to its broad asset
// category.
func FileCategory(ext string) Category {
	switch strings.ToLower(ext) {
	case "bmp", "gif", "jpg", "jpeg", "png", "pbm", "pgm", "ppm", "xbm",
		"xpm", "tga", "ico", "tiff", "dds", "pvr", "astc", "ktx", "cbk":
		return CategoryTexture
	case "mesh":
		return CategoryMesh
	}
	return CategoryOther
}
