package asset

import "strconv"

// ClassID is a Unity persistent class identifier.
type ClassID int32

const (
	ClassGameObject         ClassID = 1
	ClassComponent          ClassID = 2
	ClassTransform          ClassID = 4
	ClassCamera             ClassID = 20
	ClassMaterial           ClassID = 21
	ClassMeshRenderer       ClassID = 23
	ClassTexture2D          ClassID = 28
	ClassMeshFilter         ClassID = 33
	ClassMesh               ClassID = 43
	ClassShader             ClassID = 48
	ClassTextAsset          ClassID = 49
	ClassRigidbody2D        ClassID = 50
	ClassAnimationClip      ClassID = 74
	ClassAudioClip          ClassID = 83
	ClassAnimatorController ClassID = 91
	ClassAnimator           ClassID = 95
	ClassMonoBehaviour      ClassID = 114
	ClassMonoScript         ClassID = 115
	ClassFont               ClassID = 128
	ClassAssetBundle        ClassID = 142
	ClassResourceManager    ClassID = 147
	ClassPreloadData        ClassID = 150
	ClassSprite             ClassID = 213
	ClassCanvas             ClassID = 223
	ClassRectTransform      ClassID = 224
	ClassVideoClip          ClassID = 329
	ClassSpriteAtlas        ClassID = 687078895
)

var classNames = map[ClassID]string{
	ClassGameObject:         "GameObject",
	ClassComponent:          "Component",
	ClassTransform:          "Transform",
	ClassCamera:             "Camera",
	ClassMaterial:           "Material",
	ClassMeshRenderer:       "MeshRenderer",
	ClassTexture2D:          "Texture2D",
	ClassMeshFilter:         "MeshFilter",
	ClassMesh:               "Mesh",
	ClassShader:             "Shader",
	ClassTextAsset:          "TextAsset",
	ClassRigidbody2D:        "Rigidbody2D",
	ClassAnimationClip:      "AnimationClip",
	ClassAudioClip:          "AudioClip",
	ClassAnimatorController: "AnimatorController",
	ClassAnimator:           "Animator",
	ClassMonoBehaviour:      "MonoBehaviour",
	ClassMonoScript:         "MonoScript",
	ClassFont:               "Font",
	ClassAssetBundle:        "AssetBundle",
	ClassResourceManager:    "ResourceManager",
	ClassPreloadData:        "PreloadData",
	ClassSprite:             "Sprite",
	ClassCanvas:             "Canvas",
	ClassRectTransform:      "RectTransform",
	ClassVideoClip:          "VideoClip",
	ClassSpriteAtlas:        "SpriteAtlas",
}

func (c ClassID) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return "Class" + strconv.Itoa(int(c))
}

// ParseClassID accepts a class name or a decimal id.
func ParseClassID(s string) (ClassID, bool) {
	for id, name := range classNames {
		if name == s {
			return id, true
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return ClassID(n), true
}
