package gbm_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/bufalloc/caps"
	"github.com/vkngwrapper/bufalloc/format"
	"github.com/vkngwrapper/bufalloc/gbm"
)

func TestDefaultResolver(t *testing.T) {
	testCases := map[string]struct {
		Resolver       gbm.DefaultResolver
		Format         format.FourCC
		Use            caps.UseFlags
		ExpectedFormat format.FourCC
		ExpectedUse    caps.UseFlags
	}{
		"ImplementationDefinedCamera": {
			Format:         format.FlexImplementationDefined,
			Use:            caps.UseCameraRead | caps.UseHWVideoEncoder,
			ExpectedFormat: format.NV12,
			ExpectedUse:    caps.UseCameraRead | caps.UseHWVideoEncoder,
		},
		"ImplementationDefinedFallback": {
			Format:         format.FlexImplementationDefined,
			Use:            caps.UseTexture | caps.UseHWVideoEncoder,
			ExpectedFormat: format.XBGR8888,
			ExpectedUse:    caps.UseTexture,
		},
		"ImplementationDefinedCustomFallback": {
			Resolver:       gbm.DefaultResolver{ImplementationDefinedFallback: format.ARGB8888},
			Format:         format.FlexImplementationDefined,
			Use:            caps.UseScanout,
			ExpectedFormat: format.ARGB8888,
			ExpectedUse:    caps.UseScanout,
		},
		"FlexibleYCbCr": {
			Format:         format.FlexYCbCr420888,
			Use:            caps.UseHWVideoDecoder,
			ExpectedFormat: format.NV12,
			ExpectedUse:    caps.UseHWVideoDecoder,
		},
		"AndroidYV12": {
			Format:         format.YVU420Android,
			Use:            caps.UseScanout | caps.UseTexture,
			ExpectedFormat: format.YVU420Android,
			ExpectedUse:    caps.UseTexture,
		},
		"Passthrough": {
			Format:         format.P010,
			Use:            caps.UseScanout,
			ExpectedFormat: format.P010,
			ExpectedUse:    caps.UseScanout,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			f, use := testCase.Resolver.ResolveFormatAndUse(testCase.Format, testCase.Use)
			require.Equal(t, testCase.ExpectedFormat, f)
			require.Equal(t, testCase.ExpectedUse, use)
		})
	}
}

func TestMapFlagsString(t *testing.T) {
	require.Contains(t, gbm.MapReadWrite.String(), "MapRead")
	require.Contains(t, gbm.MapReadWrite.String(), "MapWrite")
}
